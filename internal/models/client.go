package models

import "time"

// Client is a brand being analyzed. It belongs to exactly one tenant user.
type Client struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   uint64    `gorm:"index;not null" json:"-"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Industry  string    `gorm:"type:varchar(128)" json:"industry"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Client) TableName() string { return "clients" }
