package aicontext

import "time"

type Status string

const (
	StatusCached    Status = "cached"
	StatusFilesOnly Status = "files_only"
)

// ContextRecord is the provider-side knowledge state of one client.
type ContextRecord struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientID    uint64     `gorm:"uniqueIndex;not null" json:"client_id"`
	CacheName   *string    `gorm:"type:varchar(255)" json:"cache_name"`
	Status      Status     `gorm:"type:varchar(16);not null" json:"status"`
	LastUpdated time.Time  `json:"last_updated"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

func (ContextRecord) TableName() string { return "ai_contexts" }

func (r *ContextRecord) HasCache() bool { return r.CacheName != nil && *r.CacheName != "" }

// ContextFile is one document registered with the provider. Rows are append-only.
type ContextFile struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ContextID    uint64    `gorm:"index;not null" json:"context_id"`
	Filename     string    `gorm:"type:varchar(255);not null" json:"filename"`
	Category     string    `gorm:"type:varchar(64)" json:"category"`
	MIMEType     string    `gorm:"type:varchar(128);not null" json:"mime_type"`
	ProviderName string    `gorm:"type:varchar(255);not null" json:"provider_name"`
	ProviderURI  string    `gorm:"type:varchar(512)" json:"-"`
	SizeBytes    int64     `json:"size_bytes"`
	UploadedAt   time.Time `gorm:"index" json:"uploaded_at"`
}

func (ContextFile) TableName() string { return "ai_context_files" }
