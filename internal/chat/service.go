package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/aicontext"
	"github.com/suPer8Hu/brandpulse/internal/common"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/prompts"
	"gorm.io/datatypes"
)

const (
	// NoDataReply is returned instead of an error when the client has no context yet.
	NoDataReply = "There is no data for this brand yet. Upload documents first and I will answer questions about them."
	// GenericFailureReply hides provider failures from the caller.
	GenericFailureReply = "Sorry, I could not generate an answer right now. Please try again in a moment."

	defaultTitle = "New conversation"
)

var ErrSessionClosed = errors.New("chat session is closed")

type Service struct {
	repo         *Repo
	contexts     *aicontext.Manager
	provider     ai.ContextProvider
	prompts      *prompts.Set
	historyLimit int
	log          *logger.Logger
}

// NewService wires the chat flow. historyLimit <= 0 replays the whole session.
func NewService(repo *Repo, contexts *aicontext.Manager, provider ai.ContextProvider, p *prompts.Set, historyLimit int, log *logger.Logger) *Service {
	return &Service{
		repo:         repo,
		contexts:     contexts,
		provider:     provider,
		prompts:      p,
		historyLimit: historyLimit,
		log:          log,
	}
}

func (s *Service) CreateSession(ctx context.Context, clientID uint64, title string) (*Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}
	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		SessionID: sid,
		ClientID:  clientID,
		Title:     title,
		IsActive:  true,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, clientID uint64) ([]Session, error) {
	return s.repo.ListSessions(ctx, clientID)
}

func (s *Service) ListMessages(ctx context.Context, clientID uint64, sessionID string) ([]Message, error) {
	if _, err := s.repo.GetSession(ctx, clientID, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, sessionID, 0)
}

func (s *Service) CloseSession(ctx context.Context, clientID uint64, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSession(ctx, clientID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CloseSession(ctx, sess.ID); err != nil {
		return nil, err
	}
	sess.IsActive = false
	return sess, nil
}

// SendResult is the outcome of one chat turn. NoContext and Failed are soft outcomes: Reply then
// holds a user-facing text and nothing was stored.
type SendResult struct {
	Reply              string `json:"reply"`
	NoContext          bool   `json:"no_context"`
	Failed             bool   `json:"failed"`
	Fallback           bool   `json:"fallback"`
	Mode               string `json:"mode,omitempty"`
	UserMessageID      uint64 `json:"user_message_id,omitempty"`
	AssistantMessageID uint64 `json:"assistant_message_id,omitempty"`
}

const (
	modeCache = "cache"
	modeFiles = "files"
)

// replyMeta is stored as the assistant message metadata.
type replyMeta struct {
	Mode     string `json:"mode"`
	Fallback bool   `json:"fallback"`
}

// SendMessage runs one turn against the client's context and stores both sides of the exchange.
// Errors are limited to session lookup and storage; provider trouble ends in a soft result.
func (s *Service) SendMessage(ctx context.Context, clientID uint64, sessionID, text string) (*SendResult, error) {
	sess, err := s.repo.GetSession(ctx, clientID, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive {
		return nil, ErrSessionClosed
	}

	rec, err := s.contexts.RecordForClient(ctx, clientID)
	if errors.Is(err, aicontext.ErrNoContext) {
		return &SendResult{Reply: NoDataReply, NoContext: true}, nil
	}
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListMessages(ctx, sess.SessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}

	sentAt := time.Now()
	gen, err := s.contexts.Begin(ctx, rec)
	if errors.Is(err, aicontext.ErrNoContext) {
		return &SendResult{Reply: NoDataReply, NoContext: true}, nil
	}
	if err != nil {
		s.log.Error("resolve chat context failed", "client_id", clientID, "session_id", sessionID, "err", err)
		return &SendResult{Reply: GenericFailureReply, Failed: true}, nil
	}

	reply, err := gen.Run(ctx, func(t ai.Target) (string, error) {
		return s.provider.Generate(ctx, s.buildRequest(t, history, text))
	})
	if errors.Is(err, aicontext.ErrNoContext) {
		return &SendResult{Reply: NoDataReply, NoContext: true}, nil
	}
	if err != nil {
		s.log.Error("chat generation failed", "client_id", clientID, "session_id", sessionID, "err", err)
		return &SendResult{Reply: GenericFailureReply, Failed: true, Fallback: gen.Fallback()}, nil
	}

	mode := modeFiles
	if gen.Target().UsesCache() {
		mode = modeCache
	}
	meta, err := json.Marshal(replyMeta{Mode: mode, Fallback: gen.Fallback()})
	if err != nil {
		return nil, err
	}

	userMsg := &Message{
		SessionID: sess.SessionID,
		Role:      ai.RoleUser,
		Content:   text,
		CreatedAt: sentAt,
	}
	assistantMsg := &Message{
		SessionID: sess.SessionID,
		Role:      ai.RoleAssistant,
		Content:   reply,
		Metadata:  datatypes.JSON(meta),
		CreatedAt: time.Now(),
	}
	if !assistantMsg.CreatedAt.After(sentAt) {
		assistantMsg.CreatedAt = sentAt.Add(time.Microsecond)
	}
	if err := s.repo.AppendExchange(ctx, sess, userMsg, assistantMsg); err != nil {
		return nil, err
	}

	return &SendResult{
		Reply:              reply,
		Fallback:           gen.Fallback(),
		Mode:               mode,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMsg.ID,
	}, nil
}

// buildRequest maps stored turns to provider turns. Without a cache the files ride on a leading
// bootstrap exchange so the model sees them before the conversation.
func (s *Service) buildRequest(t ai.Target, history []Message, text string) ai.GenerateRequest {
	req := ai.GenerateRequest{
		CacheName: t.CacheName,
		Message:   ai.Message{Role: ai.RoleUser, Content: text},
	}
	turns := make([]ai.Message, 0, len(history)+2)
	if !t.UsesCache() {
		req.SystemInstruction = s.prompts.SystemInstruction
		turns = append(turns,
			ai.Message{Role: ai.RoleUser, Content: strings.TrimSpace(s.prompts.Bootstrap.User), Files: t.Files},
			ai.Message{Role: ai.RoleAssistant, Content: strings.TrimSpace(s.prompts.Bootstrap.Assistant)},
		)
	}
	for _, m := range history {
		turns = append(turns, ai.Message{Role: m.Role, Content: m.Content})
	}
	req.History = turns
	return req
}
