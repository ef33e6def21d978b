package planning

import "time"

type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Task is one item of a client's content calendar.
type Task struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ClientID    uint64     `gorm:"index;not null" json:"client_id"`
	Title       string     `gorm:"type:varchar(255);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Channel     string     `gorm:"type:varchar(64)" json:"channel"`
	Status      TaskStatus `gorm:"type:varchar(16);not null" json:"status"`
	DueDate     *time.Time `json:"due_date"`
	Notes       []TaskNote `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Task) TableName() string { return "planning_tasks" }

type TaskNote struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	TaskID    uint64    `gorm:"index;not null" json:"task_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (TaskNote) TableName() string { return "planning_task_notes" }
