package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"ichat-sync/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for messages in both conversation
// kinds. Messages are addressed by globally unique ids, never by position.
type MessageRepository interface {
	Create(ctx context.Context, ref models.ConversationRef, senderID string, draft MessageDraft) (models.Message, error)
	ListForUser(ctx context.Context, ref models.ConversationRef, userID string, limit int) ([]models.Message, error)
	Get(ctx context.Context, messageID string) (models.Message, error)
	UpdateContent(ctx context.Context, messageID, senderID, content string) (models.Message, error)
	DeleteForUser(ctx context.Context, messageID, userID string) error
	DeleteForEveryone(ctx context.Context, messageID, senderID string) error
	AddReaction(ctx context.Context, messageID string, reaction models.Reaction) error
	MarkRead(ctx context.Context, ref models.ConversationRef, messageIDs []string, userID string) ([]string, error)
	SetPriority(ctx context.Context, messageID string, priority models.Priority) error
	SetTags(ctx context.Context, messageID string, tags []string) error
}

// MessageDraft is the caller-supplied part of a new message.
type MessageDraft struct {
	Content  string
	Type     models.MessageType
	Priority models.Priority
	Tags     []string
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

type messageRow struct {
	ID                 string          `db:"id"`
	ChatID             string          `db:"chat_id"`
	GroupID            string          `db:"group_id"`
	SenderID           string          `db:"sender_id"`
	Content            string          `db:"content"`
	Type               string          `db:"type"`
	Priority           string          `db:"priority"`
	Tags               pq.StringArray  `db:"tags"`
	Reactions          json.RawMessage `db:"reactions"`
	ReadBy             pq.StringArray  `db:"read_by"`
	DeletedForUserIDs  pq.StringArray  `db:"deleted_for_user_ids"`
	DeletedForEveryone bool            `db:"deleted_for_everyone"`
	EditedAt           *time.Time      `db:"edited_at"`
	CreatedAt          time.Time       `db:"created_at"`
}

const messageColumns = `id, chat_id, group_id, sender_id, content, type, priority, tags,
    reactions, read_by, deleted_for_user_ids, deleted_for_everyone, edited_at, created_at`

func (r messageRow) message() (models.Message, error) {
	var reactions []models.Reaction
	if len(r.Reactions) > 0 {
		if err := json.Unmarshal(r.Reactions, &reactions); err != nil {
			return models.Message{}, err
		}
	}
	return models.Message{
		ID:                 r.ID,
		Conversation:       models.ConversationRef{ChatID: r.ChatID, GroupID: r.GroupID},
		SenderID:           r.SenderID,
		Content:            r.Content,
		Type:               models.MessageType(r.Type),
		CreatedAt:          r.CreatedAt,
		EditedAt:           r.EditedAt,
		IsDeleted:          r.DeletedForEveryone,
		DeletedForUserIDs:  []string(r.DeletedForUserIDs),
		DeletedForEveryone: r.DeletedForEveryone,
		Reactions:          reactions,
		ReadBy:             []string(r.ReadBy),
		Priority:           models.Priority(r.Priority),
		Tags:               []string(r.Tags),
	}, nil
}

// Create stores a new message. The sender starts in the read set.
func (r *MessageRepo) Create(ctx context.Context, ref models.ConversationRef, senderID string, draft MessageDraft) (models.Message, error) {
	msgType := draft.Type
	if msgType == "" {
		msgType = models.TypeText
	}
	priority := draft.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	tags := draft.Tags
	if tags == nil {
		tags = []string{}
	}

	var row messageRow
	err := r.db.GetContext(ctx, &row,
		`INSERT INTO messages (id, chat_id, group_id, sender_id, content, type, priority, tags, read_by)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
         RETURNING `+messageColumns,
		uuid.NewString(), ref.ChatID, ref.GroupID, senderID, draft.Content,
		string(msgType), string(priority), pq.StringArray(tags), pq.StringArray{senderID})
	if err != nil {
		return models.Message{}, err
	}
	return row.message()
}

// ListForUser returns the hydrate snapshot for a conversation in (created_at,
// id) order, without the messages the user deleted for themselves. A positive
// limit returns the newest messages, still in ascending order.
func (r *MessageRepo) ListForUser(ctx context.Context, ref models.ConversationRef, userID string, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE chat_id=$1 AND group_id=$2
        AND NOT ($3 = ANY(deleted_for_user_ids))
        ORDER BY created_at ASC, id ASC`
	args := []any{ref.ChatID, ref.GroupID, userID}
	if limit > 0 {
		query = `SELECT ` + messageColumns + ` FROM (
            SELECT ` + messageColumns + `
            FROM messages
            WHERE chat_id=$1 AND group_id=$2
            AND NOT ($3 = ANY(deleted_for_user_ids))
            ORDER BY created_at DESC, id DESC LIMIT $4
        ) newest ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.message()
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// Get retrieves a single message.
func (r *MessageRepo) Get(ctx context.Context, messageID string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row,
		`SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.message()
}

// UpdateContent edits a message's content. Only the sender may edit, and a
// tombstoned message stays tombstoned.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID, senderID, content string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row,
		`UPDATE messages SET content=$3, edited_at=NOW()
         WHERE id=$1 AND sender_id=$2 AND deleted_for_everyone=FALSE
         RETURNING `+messageColumns, messageID, senderID, content)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.message()
}

// DeleteForUser hides a message for one user only.
func (r *MessageRepo) DeleteForUser(ctx context.Context, messageID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_for_user_ids = array_append(deleted_for_user_ids, $2)
         WHERE id=$1 AND NOT ($2 = ANY(deleted_for_user_ids))`, messageID, userID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteForEveryone tombstones a message for all members. Sender only.
func (r *MessageRepo) DeleteForEveryone(ctx context.Context, messageID, senderID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET deleted_for_everyone=TRUE, content=''
         WHERE id=$1 AND sender_id=$2`, messageID, senderID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// AddReaction appends an emoji reaction.
func (r *MessageRepo) AddReaction(ctx context.Context, messageID string, reaction models.Reaction) error {
	raw, err := json.Marshal(reaction)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET reactions = reactions || $2::jsonb WHERE id=$1`, messageID, raw)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkRead adds the user to the read set of the given messages and returns
// the ids that actually changed. Already-read ids drop out here, which keeps
// the fanned-out receipt event minimal.
func (r *MessageRepo) MarkRead(ctx context.Context, ref models.ConversationRef, messageIDs []string, userID string) ([]string, error) {
	var updated pq.StringArray
	err := r.db.SelectContext(ctx, &updated,
		`UPDATE messages SET read_by = array_append(read_by, $4)
         WHERE id = ANY($3) AND chat_id=$1 AND group_id=$2
         AND NOT ($4 = ANY(read_by))
         RETURNING id`,
		ref.ChatID, ref.GroupID, pq.StringArray(messageIDs), userID)
	if err != nil {
		return nil, err
	}
	return []string(updated), nil
}

// SetPriority changes a message's priority level.
func (r *MessageRepo) SetPriority(ctx context.Context, messageID string, priority models.Priority) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET priority=$2 WHERE id=$1`, messageID, string(priority))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetTags replaces a message's tag set.
func (r *MessageRepo) SetTags(ctx context.Context, messageID string, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET tags=$2 WHERE id=$1`, messageID, pq.StringArray(tags))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}
