package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/analysis"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/prompts"
)

var (
	ErrInvalidTask   = errors.New("invalid task")
	ErrInvalidStatus = errors.New("invalid task status")
)

type Service struct {
	repo     *Repo
	registry *ai.Registry
	provider string
	model    string
	prompts  *prompts.Set
	log      *logger.Logger
	now      func() time.Time
}

// NewService builds the planning service. provider and model select the plain chat backend used
// for plan generation.
func NewService(repo *Repo, registry *ai.Registry, provider, model string, p *prompts.Set, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		provider: provider,
		model:    model,
		prompts:  p,
		log:      log,
		now:      time.Now,
	}
}

type TaskInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Channel     string     `json:"channel"`
	DueDate     *time.Time `json:"due_date"`
}

func (s *Service) CreateTask(ctx context.Context, clientID uint64, in TaskInput) (*Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	t := &Task{
		ClientID:    clientID,
		Title:       title,
		Description: in.Description,
		Channel:     strings.ToLower(strings.TrimSpace(in.Channel)),
		Status:      StatusTodo,
		DueDate:     in.DueDate,
	}
	if err := s.repo.CreateTasks(ctx, []*Task{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListTasks(ctx context.Context, clientID uint64, status string) ([]Task, error) {
	st := TaskStatus(status)
	if st != "" && !st.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.repo.ListTasks(ctx, clientID, st)
}

// TaskPatch holds the fields to change; nil fields are left alone.
type TaskPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Channel     *string    `json:"channel"`
	Status      *string    `json:"status"`
	DueDate     *time.Time `json:"due_date"`
}

func (s *Service) UpdateTask(ctx context.Context, clientID, taskID uint64, p TaskPatch) (*Task, error) {
	if _, err := s.repo.GetTask(ctx, clientID, taskID); err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidTask)
		}
		fields["title"] = title
	}
	if p.Description != nil {
		fields["description"] = *p.Description
	}
	if p.Channel != nil {
		fields["channel"] = strings.ToLower(strings.TrimSpace(*p.Channel))
	}
	if p.Status != nil {
		st := TaskStatus(*p.Status)
		if !st.Valid() {
			return nil, ErrInvalidStatus
		}
		fields["status"] = st
	}
	if p.DueDate != nil {
		fields["due_date"] = *p.DueDate
	}
	if len(fields) > 0 {
		if err := s.repo.UpdateTask(ctx, taskID, fields); err != nil {
			return nil, err
		}
	}
	return s.repo.GetTask(ctx, clientID, taskID)
}

func (s *Service) DeleteTask(ctx context.Context, clientID, taskID uint64) error {
	if _, err := s.repo.GetTask(ctx, clientID, taskID); err != nil {
		return err
	}
	return s.repo.DeleteTask(ctx, taskID)
}

func (s *Service) AddNote(ctx context.Context, clientID, taskID uint64, content string) (*TaskNote, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: note is empty", ErrInvalidTask)
	}
	if _, err := s.repo.GetTask(ctx, clientID, taskID); err != nil {
		return nil, err
	}
	n := &TaskNote{TaskID: taskID, Content: content}
	if err := s.repo.AddNote(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *Service) ListNotes(ctx context.Context, clientID, taskID uint64) ([]TaskNote, error) {
	if _, err := s.repo.GetTask(ctx, clientID, taskID); err != nil {
		return nil, err
	}
	return s.repo.ListNotes(ctx, taskID)
}

type PlanInput struct {
	ClientID uint64
	Brand    string
	Industry string
	Goal     string
	Weeks    int
}

type plannedTask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Channel     string `json:"channel"`
	DueInDays   int    `json:"due_in_days"`
}

// GeneratePlan asks the planning provider for a content calendar and stores every task it
// returns. An answer that is not the expected JSON is an *analysis.ParseError.
func (s *Service) GeneratePlan(ctx context.Context, in PlanInput) ([]*Task, error) {
	if strings.TrimSpace(in.Goal) == "" {
		return nil, fmt.Errorf("%w: goal is required", ErrInvalidTask)
	}
	if in.Weeks <= 0 || in.Weeks > 12 {
		in.Weeks = 4
	}
	provider, err := s.registry.Get(ctx, s.provider, s.model)
	if err != nil {
		return nil, err
	}

	msgs := []ai.Message{
		{Role: ai.RoleSystem, Content: strings.TrimSpace(s.prompts.Planner.System)},
		{Role: ai.RoleUser, Content: fmt.Sprintf("%s\nBrand: %s\nIndustry: %s\nGoal: %s\nWeeks: %d",
			strings.TrimSpace(s.prompts.Planner.Prompt), in.Brand, in.Industry, in.Goal, in.Weeks)},
	}
	var raw string
	if jp, ok := provider.(ai.JSONProvider); ok {
		raw, err = jp.ChatJSON(ctx, msgs)
	} else {
		raw, err = provider.Chat(ctx, msgs)
	}
	if err != nil {
		return nil, err
	}

	body, err := analysis.Parse(raw, []string{"tasks"})
	if err != nil {
		s.log.Warn("plan output rejected", "client_id", in.ClientID, "err", err, "raw", raw)
		return nil, err
	}
	var plan struct {
		Tasks []plannedTask `json:"tasks"`
	}
	if err := json.Unmarshal(body, &plan); err != nil {
		return nil, &analysis.ParseError{Raw: raw, Err: err}
	}

	start := s.now()
	tasks := make([]*Task, 0, len(plan.Tasks))
	for _, p := range plan.Tasks {
		title := strings.TrimSpace(p.Title)
		if title == "" {
			continue
		}
		t := &Task{
			ClientID:    in.ClientID,
			Title:       title,
			Description: p.Description,
			Channel:     strings.ToLower(strings.TrimSpace(p.Channel)),
			Status:      StatusTodo,
		}
		if p.DueInDays >= 0 {
			due := start.AddDate(0, 0, p.DueInDays)
			t.DueDate = &due
		}
		tasks = append(tasks, t)
	}
	if len(tasks) == 0 {
		return nil, &analysis.ParseError{Raw: raw, Err: errors.New("plan has no tasks")}
	}
	if err := s.repo.CreateTasks(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}
