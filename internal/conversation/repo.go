package conversation

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// GetOrCreate returns the conversation for the session, creating it on
// first use. The unique index on session_id makes concurrent first
// requests safe: if the insert loses the race it re-reads the winner's
// row instead of creating a duplicate.
func (r *Repo) GetOrCreate(ctx context.Context, sessionID string) (*Conversation, error) {
	var c Conversation
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	c = Conversation{SessionID: sessionID, Title: DefaultTitle}
	if createErr := r.db.WithContext(ctx).Create(&c).Error; createErr != nil {
		var existing Conversation
		if getErr := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&existing).Error; getErr == nil {
			return &existing, nil
		}
		return nil, createErr
	}
	return &c, nil
}

func (r *Repo) Create(ctx context.Context, sessionID, title string) (*Conversation, error) {
	if title == "" {
		title = DefaultTitle
	}
	c := Conversation{SessionID: sessionID, Title: title}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetBySessionID(ctx context.Context, sessionID string) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// AppendMessage writes one turn entry. Messages are append-only; there
// is no update path.
func (r *Repo) AppendMessage(ctx context.Context, conversationID uint64, role, content string) (*Message, error) {
	m := Message{ConversationID: conversationID, Role: role, Content: content}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// RecentMessages returns the most recent messages in chronological
// (oldest -> newest) order, capped at limit.
func (r *Repo) RecentMessages(ctx context.Context, conversationID uint64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	// reverse to ASC
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ListMessages returns messages in DESC id order (newest -> oldest) for
// paginated history reads.
func (r *Repo) ListMessages(ctx context.Context, conversationID uint64, limit int, beforeID uint64) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}
