package planning

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateTasks(ctx context.Context, tasks []*Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(tasks).Error
}

// GetTask only finds tasks of clientID.
func (r *Repo) GetTask(ctx context.Context, clientID, taskID uint64) (*Task, error) {
	var t Task
	if err := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", taskID, clientID).
		First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks orders by due date, undated tasks last.
func (r *Repo) ListTasks(ctx context.Context, clientID uint64, status TaskStatus) ([]Task, error) {
	q := r.db.WithContext(ctx).Where("client_id = ?", clientID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []Task
	if err := q.Order("due_date IS NULL, due_date ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) UpdateTask(ctx context.Context, id uint64, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Updates(fields).Error
}

// DeleteTask removes a task together with its notes.
func (r *Repo) DeleteTask(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", id).Delete(&TaskNote{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Task{}, id).Error
	})
}

func (r *Repo) AddNote(ctx context.Context, n *TaskNote) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *Repo) ListNotes(ctx context.Context, taskID uint64) ([]TaskNote, error) {
	var out []TaskNote
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
