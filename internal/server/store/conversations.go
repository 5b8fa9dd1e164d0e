package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ichat-sync/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository defines interactions for chats and groups.
type ConversationRepository interface {
	CreateChat(ctx context.Context, userID, friendID string) (models.ConversationSummary, error)
	CreateGroup(ctx context.Context, name string, memberIDs []string) (models.ConversationSummary, error)
	ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	IsMember(ctx context.Context, ref models.ConversationRef, userID string) (bool, error)
	Members(ctx context.Context, ref models.ConversationRef) ([]string, error)
}

// ConversationRepo is a sqlx-backed repository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

type conversationRow struct {
	ID            string         `db:"id"`
	Kind          string         `db:"kind"`
	Name          string         `db:"name"`
	MemberIDs     pq.StringArray `db:"member_ids"`
	LastMessageAt *time.Time     `db:"last_message_at"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r conversationRow) summary() models.ConversationSummary {
	ref := models.ChatRef(r.ID)
	if r.Kind == "group" {
		ref = models.GroupRef(r.ID)
	}
	return models.ConversationSummary{
		Ref:           ref,
		Name:          r.Name,
		MemberIDs:     []string(r.MemberIDs),
		LastMessageAt: r.LastMessageAt,
		CreatedAt:     r.CreatedAt,
	}
}

// CreateChat creates a private chat between two users, reusing an existing
// one when the pair already has a chat.
func (r *ConversationRepo) CreateChat(ctx context.Context, userID, friendID string) (models.ConversationSummary, error) {
	var row conversationRow
	members := pq.StringArray{userID, friendID}
	err := r.db.GetContext(ctx, &row,
		`SELECT id, kind, name, member_ids, NULL::timestamptz AS last_message_at, created_at
         FROM conversations WHERE kind='chat' AND member_ids @> $1 AND $1 @> member_ids`, members)
	if err == nil {
		return row.summary(), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.ConversationSummary{}, err
	}

	err = r.db.GetContext(ctx, &row,
		`INSERT INTO conversations (id, kind, member_ids) VALUES ($1, 'chat', $2)
         RETURNING id, kind, name, member_ids, NULL::timestamptz AS last_message_at, created_at`,
		uuid.NewString(), members)
	if err != nil {
		return models.ConversationSummary{}, err
	}
	return row.summary(), nil
}

// CreateGroup creates a group with the given members.
func (r *ConversationRepo) CreateGroup(ctx context.Context, name string, memberIDs []string) (models.ConversationSummary, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row,
		`INSERT INTO conversations (id, kind, name, member_ids) VALUES ($1, 'group', $2, $3)
         RETURNING id, kind, name, member_ids, NULL::timestamptz AS last_message_at, created_at`,
		uuid.NewString(), name, pq.StringArray(memberIDs))
	if err != nil {
		return models.ConversationSummary{}, err
	}
	return row.summary(), nil
}

// ListForUser returns the conversations the user belongs to, most recently
// active first.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	var rows []conversationRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT c.id, c.kind, c.name, c.member_ids,
                (SELECT MAX(m.created_at) FROM messages m
                 WHERE (c.kind='chat' AND m.chat_id=c.id) OR (c.kind='group' AND m.group_id=c.id)) AS last_message_at,
                c.created_at
         FROM conversations c
         WHERE $1 = ANY(c.member_ids)
         ORDER BY last_message_at DESC NULLS LAST, c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.summary())
	}
	return out, nil
}

// IsMember reports whether the user belongs to the conversation.
func (r *ConversationRepo) IsMember(ctx context.Context, ref models.ConversationRef, userID string) (bool, error) {
	var member bool
	err := r.db.GetContext(ctx, &member,
		`SELECT EXISTS (SELECT 1 FROM conversations WHERE id=$1 AND kind=$2 AND $3 = ANY(member_ids))`,
		refID(ref), refKind(ref), userID)
	return member, err
}

// Members returns the conversation's member ids.
func (r *ConversationRepo) Members(ctx context.Context, ref models.ConversationRef) ([]string, error) {
	var members pq.StringArray
	err := r.db.GetContext(ctx, &members,
		`SELECT member_ids FROM conversations WHERE id=$1 AND kind=$2`, refID(ref), refKind(ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	return []string(members), err
}

func refID(ref models.ConversationRef) string {
	if ref.IsGroup() {
		return ref.GroupID
	}
	return ref.ChatID
}

func refKind(ref models.ConversationRef) string {
	if ref.IsGroup() {
		return "group"
	}
	return "chat"
}
