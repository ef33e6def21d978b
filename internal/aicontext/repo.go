package aicontext

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetByClient(ctx context.Context, clientID uint64) (*ContextRecord, error) {
	var rec ContextRecord
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetOrCreate returns the client's record, creating it on first use. The unique index on
// client_id keeps a racing create from producing a second row.
func (r *Repo) GetOrCreate(ctx context.Context, clientID uint64) (*ContextRecord, error) {
	rec, err := r.GetByClient(ctx, clientID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	rec = &ContextRecord{ClientID: clientID, Status: StatusFilesOnly, LastUpdated: time.Now()}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error; err != nil {
		return nil, err
	}
	return r.GetByClient(ctx, clientID)
}

func (r *Repo) AddFile(ctx context.Context, f *ContextFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

// ListFiles returns every file of a context in upload order.
func (r *Repo) ListFiles(ctx context.Context, contextID uint64) ([]ContextFile, error) {
	var files []ContextFile
	if err := r.db.WithContext(ctx).
		Where("context_id = ?", contextID).
		Order("uploaded_at ASC, id ASC").
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *Repo) CountFiles(ctx context.Context, contextID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&ContextFile{}).Where("context_id = ?", contextID).Count(&n).Error
	return n, err
}

func (r *Repo) SetCache(ctx context.Context, id uint64, cacheName string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&ContextRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"cache_name":   cacheName,
			"expires_at":   expiresAt,
			"status":       StatusCached,
			"last_updated": time.Now(),
		}).Error
}

func (r *Repo) ClearCache(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&ContextRecord{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"cache_name":   nil,
			"expires_at":   nil,
			"status":       StatusFilesOnly,
			"last_updated": time.Now(),
		}).Error
}
