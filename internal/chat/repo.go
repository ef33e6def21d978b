package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

// GetSession only finds sessions that belong to clientID.
func (r *Repo) GetSession(ctx context.Context, clientID uint64, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND client_id = ?", sessionID, clientID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns the client's sessions, most recently used first.
func (r *Repo) ListSessions(ctx context.Context, clientID uint64) ([]Session, error) {
	var out []Session
	if err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("COALESCE(last_message_at, created_at) DESC, id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) CloseSession(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// ListMessages returns the session's turns oldest first. limit > 0 keeps only the newest limit turns.
func (r *Repo) ListMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		var msgs []Message
		if err := r.db.WithContext(ctx).
			Where("session_id = ?", sessionID).
			Order("created_at ASC, id ASC").
			Find(&msgs).Error; err != nil {
			return nil, err
		}
		return msgs, nil
	}

	var desc []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&desc).Error; err != nil {
		return nil, err
	}
	// reverse to ASC (oldest -> newest)
	for i, j := 0, len(desc)-1; i < j; i, j = i+1, j-1 {
		desc[i], desc[j] = desc[j], desc[i]
	}
	return desc, nil
}

// AppendExchange stores a user turn and its reply and bumps the session's last-message time,
// all or nothing.
func (r *Repo) AppendExchange(ctx context.Context, sess *Session, user, assistant *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		if err := tx.Create(assistant).Error; err != nil {
			return err
		}
		at := assistant.CreatedAt
		if at.IsZero() {
			at = time.Now()
		}
		if err := tx.Model(&Session{}).
			Where("id = ?", sess.ID).
			Update("last_message_at", at).Error; err != nil {
			return err
		}
		sess.LastMessageAt = &at
		return nil
	})
}
