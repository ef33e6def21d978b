package db

import (
	"testing"

	"github.com/suPer8Hu/brandpulse/internal/models"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	gdb, err := Open("sqlite:file:dbtest?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"users", "clients", "ai_contexts", "ai_context_files", "chat_sessions",
		"chat_messages", "analysis_runs", "analysis_jobs", "planning_tasks", "planning_task_notes"} {
		if !gdb.Migrator().HasTable(table) {
			t.Fatalf("table %s missing", table)
		}
	}
	if err := gdb.Create(&models.User{Email: "a@b.c", PasswordHash: "x"}).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
}
