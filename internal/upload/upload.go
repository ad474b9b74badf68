package upload

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// File is the metadata row for one uploaded file. Every upload gets a
// fresh storage key, identical bytes included; there is no dedup.
type File struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID        string    `gorm:"type:varchar(64);index;not null" json:"-"`
	Filename         string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"-"`
	OriginalFilename string    `gorm:"type:varchar(255);not null" json:"original_filename"`
	FileURL          string    `gorm:"type:varchar(500);not null" json:"file_url"`
	FileType         string    `gorm:"type:varchar(100);not null" json:"file_type"`
	CreatedAt        time.Time `json:"created_at"`
}

func (File) TableName() string { return "uploaded_files" }

type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

func (r *Registry) Create(ctx context.Context, f *File) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *Registry) ListBySession(ctx context.Context, sessionID string) ([]File, error) {
	var files []File
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *Registry) GetByFilename(ctx context.Context, sessionID, filename string) (*File, error) {
	var f File
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND filename = ?", sessionID, filename).
		First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}
