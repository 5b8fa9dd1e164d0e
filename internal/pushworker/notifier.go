package pushworker

import (
	"strings"

	"github.com/gen2brain/beeep"
)

// BeeepNotifier renders notifications through the desktop notification
// service of the host OS.
type BeeepNotifier struct {
	// AppIcon is the fallback icon when the payload carries none.
	AppIcon string
}

// Show implements Notifier. Sounded notifications go through the alert path,
// silent ones through plain notify.
func (n *BeeepNotifier) Show(notification Notification) error {
	icon := notification.Icon
	if icon == "" {
		icon = n.AppIcon
	}

	var err error
	if notification.Sound {
		err = beeep.Alert(notification.Title, notification.Body, icon)
	} else {
		err = beeep.Notify(notification.Title, notification.Body, icon)
	}
	if err != nil && deniedError(err) {
		return ErrPermissionDenied
	}
	return err
}

// deniedError spots OS permission rejections in the notifier's error text.
// beeep wraps three platform backends and none of them types this.
func deniedError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "not allowed") ||
		strings.Contains(msg, "permission")
}
