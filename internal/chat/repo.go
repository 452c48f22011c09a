package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Repo is the persistence gateway. Every method is atomic per call;
// insertion order within a conversation is preserved by the auto-increment
// message key.
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Conversation{}, &Message{}, &Job{})
}

// Ping verifies database connectivity for the readiness probe.
func (r *Repo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repo) CreateConversation(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) CountConversations(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Conversation{}).Count(&n).Error
	return n, err
}

func (r *Repo) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	err := r.db.WithContext(ctx).
		Order("last_message_at DESC, created_at DESC").
		Find(&convs).Error
	return convs, err
}

// DeleteConversation removes the conversation and all of its messages in one
// transaction. Returns gorm.ErrRecordNotFound if the conversation is absent.
func (r *Repo) DeleteConversation(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&Conversation{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Delete(&Message{}, "conversation_id = ?", id).Error
	})
}

// InsertMessage creates the message and advances the conversation's
// last-activity timestamp in the same transaction.
func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&Conversation{}).
			Where("id = ?", m.ConversationID).
			Update("last_message_at", m.CreatedAt).Error
	})
}

// DeleteMessage is the rollback primitive. Deleting an id that is already
// gone is a no-op: rollback must never fail the response path.
func (r *Repo) DeleteMessage(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&Message{}, "id = ?", id).Error
}

// ListMessagesAsc returns the full conversation history oldest-first, the
// order the completion provider expects.
func (r *Repo) ListMessagesAsc(ctx context.Context, conversationID string) ([]Message, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	return msgs, err
}

// ListMessagesBefore scans newest-first, strictly older than the anchor when
// one is given. Callers ask for limit+1 rows to detect whether more remain.
func (r *Repo) ListMessagesBefore(ctx context.Context, conversationID string, limit int, anchorAt *time.Time, anchorID uint64) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if anchorAt != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", *anchorAt, *anchorAt, anchorID)
	}
	var msgs []Message
	err := q.Find(&msgs).Error
	return msgs, err
}

// ListMessagesAfter scans oldest-first, strictly newer than the anchor.
func (r *Repo) ListMessagesAfter(ctx context.Context, conversationID string, limit int, anchorAt time.Time, anchorID uint64) ([]Message, error) {
	var msgs []Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Where("created_at > ? OR (created_at = ? AND id > ?)", anchorAt, anchorAt, anchorID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&msgs).Error
	return msgs, err
}

// Job CRUD

func (r *Repo) CreateJob(ctx context.Context, j *Job) error {
	return r.db.WithContext(ctx).Create(j).Error
}

func (r *Repo) GetJob(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// MarkJobRunning claims a queued job. Reports false when the job was not in
// the queued state, so a redelivery cannot claim a job twice.
func (r *Repo) MarkJobRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning)
	return res.RowsAffected > 0, res.Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, resultMessageID uint64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": resultMessageID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}
