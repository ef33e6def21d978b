package db

import (
	"github.com/suPer8Hu/brandpulse/internal/aicontext"
	"github.com/suPer8Hu/brandpulse/internal/analysis"
	"github.com/suPer8Hu/brandpulse/internal/chat"
	"github.com/suPer8Hu/brandpulse/internal/models"
	"github.com/suPer8Hu/brandpulse/internal/planning"
	"gorm.io/gorm"
)

// Migrate creates or updates every table the backend uses.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.Client{},
		&aicontext.ContextRecord{},
		&aicontext.ContextFile{},
		&chat.Session{},
		&chat.Message{},
		&analysis.Run{},
		&analysis.Job{},
		&planning.Task{},
		&planning.TaskNote{},
	)
}
