package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/brandpulse/internal/ai"
	"github.com/suPer8Hu/brandpulse/internal/ai/aitest"
	"github.com/suPer8Hu/brandpulse/internal/aicontext"
	"github.com/suPer8Hu/brandpulse/internal/logger"
	"github.com/suPer8Hu/brandpulse/internal/prompts"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Session{}, &Message{}, &aicontext.ContextRecord{}, &aicontext.ContextFile{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type fixture struct {
	db       *gorm.DB
	prov     *aitest.Provider
	contexts *aicontext.Manager
	svc      *Service
	repo     *Repo
}

func newFixture(t *testing.T, historyLimit int) *fixture {
	t.Helper()
	db := openTestDB(t)
	prov := &aitest.Provider{}
	log := logger.NewNop()
	contexts := aicontext.NewManager(aicontext.NewRepo(db), prov, aicontext.Options{
		SystemInstruction: "sys",
	}, log)
	repo := NewRepo(db)
	return &fixture{
		db:       db,
		prov:     prov,
		contexts: contexts,
		repo:     repo,
		svc:      NewService(repo, contexts, prov, prompts.Default(), historyLimit, log),
	}
}

func (f *fixture) ingest(t *testing.T, clientID uint64, name string) *aicontext.IngestResult {
	t.Helper()
	res, err := f.contexts.Ingest(context.Background(), aicontext.IngestInput{
		ClientID: clientID,
		Filename: name,
		Data:     []byte("posts and comments"),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	return res
}

func (f *fixture) session(t *testing.T, clientID uint64) *Session {
	t.Helper()
	sess, err := f.svc.CreateSession(context.Background(), clientID, "")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return sess
}

func (f *fixture) countMessages(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := f.db.Model(&Message{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSendMessage_PersistsExchangesInOrder(t *testing.T) {
	f := newFixture(t, 0)
	f.ingest(t, 1, "posts.txt")
	sess := f.session(t, 1)

	for _, text := range []string{"M1", "M2"} {
		res, err := f.svc.SendMessage(context.Background(), 1, sess.SessionID, text)
		if err != nil {
			t.Fatalf("send %s: %v", text, err)
		}
		if res.Reply != "echo: "+text || res.Mode != "cache" || res.AssistantMessageID == 0 {
			t.Fatalf("unexpected result %+v", res)
		}
	}

	msgs, err := f.svc.ListMessages(context.Background(), 1, sess.SessionID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"user:M1", "assistant:echo: M1", "user:M2", "assistant:echo: M2"}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, m := range msgs {
		if got := m.Role + ":" + m.Content; got != want[i] {
			t.Fatalf("message %d: got %q want %q", i, got, want[i])
		}
	}

	// the second turn replays the first exchange, cache mode adds no bootstrap
	second := f.prov.GenerateCalls[1]
	if second.CacheName == "" || len(second.History) != 2 || second.History[0].Content != "M1" {
		t.Fatalf("unexpected second request: %+v", second)
	}

	stored, err := f.repo.GetSession(context.Background(), 1, sess.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if stored.LastMessageAt == nil {
		t.Fatalf("expected last_message_at to be bumped")
	}
}

func TestSendMessage_NoContextIsSoft(t *testing.T) {
	f := newFixture(t, 0)
	sess := f.session(t, 2)

	res, err := f.svc.SendMessage(context.Background(), 2, sess.SessionID, "hola")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.NoContext || res.Reply != NoDataReply {
		t.Fatalf("expected no-data reply, got %+v", res)
	}
	if n := f.countMessages(t); n != 0 {
		t.Fatalf("expected no stored messages, got %d", n)
	}
	if len(f.prov.GenerateCalls) != 0 {
		t.Fatalf("provider should not be called")
	}
}

func TestSendMessage_RetriesWithFilesWhenCacheNotFound(t *testing.T) {
	f := newFixture(t, 0)
	f.ingest(t, 1, "posts.txt")
	sess := f.session(t, 1)

	f.prov.GenerateFunc = func(req ai.GenerateRequest) (string, error) {
		if req.CacheName != "" {
			return "", fmt.Errorf("generate: %w", ai.ErrNotFound)
		}
		return "from files", nil
	}

	res, err := f.svc.SendMessage(context.Background(), 1, sess.SessionID, "how are we doing?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Reply != "from files" || !res.Fallback || res.Mode != "files" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(f.prov.GenerateCalls) != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", len(f.prov.GenerateCalls))
	}

	retry := f.prov.GenerateCalls[1]
	if len(retry.History) != 2 {
		t.Fatalf("expected bootstrap exchange, got %+v", retry.History)
	}
	if retry.History[0].Role != ai.RoleUser || len(retry.History[0].Files) != 1 {
		t.Fatalf("bootstrap turn must carry the files: %+v", retry.History[0])
	}
	if retry.History[1].Role != ai.RoleAssistant || !strings.HasPrefix(retry.History[1].Content, "Context loaded") {
		t.Fatalf("unexpected acknowledgement %+v", retry.History[1])
	}
	if retry.SystemInstruction == "" {
		t.Fatalf("file mode needs the system instruction")
	}

	rec, err := f.contexts.RecordForClient(context.Background(), 1)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.CacheName != nil {
		t.Fatalf("expected cache to be cleared, got %q", *rec.CacheName)
	}
	if n := f.countMessages(t); n != 2 {
		t.Fatalf("expected 2 stored messages, got %d", n)
	}
}

func TestSendMessage_ProviderFailureIsGeneric(t *testing.T) {
	f := newFixture(t, 0)
	f.ingest(t, 1, "posts.txt")
	sess := f.session(t, 1)
	f.prov.GenerateFunc = func(ai.GenerateRequest) (string, error) { return "", aitest.ErrBoom }

	res, err := f.svc.SendMessage(context.Background(), 1, sess.SessionID, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Failed || res.Reply != GenericFailureReply {
		t.Fatalf("expected generic failure, got %+v", res)
	}
	if len(f.prov.GenerateCalls) != 1 {
		t.Fatalf("non not-found errors must not be retried")
	}
	if n := f.countMessages(t); n != 0 {
		t.Fatalf("expected no stored messages, got %d", n)
	}
}

func TestSendMessage_FileModeWithoutCache(t *testing.T) {
	f := newFixture(t, 0)
	f.prov.CacheErr = aitest.ErrBoom
	f.ingest(t, 1, "a.txt")
	f.ingest(t, 1, "b.txt")
	sess := f.session(t, 1)

	res, err := f.svc.SendMessage(context.Background(), 1, sess.SessionID, "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Mode != "files" || res.Fallback {
		t.Fatalf("unexpected result %+v", res)
	}
	req := f.prov.GenerateCalls[0]
	if req.CacheName != "" || len(req.History) != 2 || len(req.History[0].Files) != 2 {
		t.Fatalf("expected both files injected, got %+v", req)
	}

	var stored Message
	if err := f.db.Where("id = ?", res.AssistantMessageID).First(&stored).Error; err != nil {
		t.Fatalf("load reply: %v", err)
	}
	var meta replyMeta
	if err := json.Unmarshal(stored.Metadata, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Mode != "files" || meta.Fallback {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestSendMessage_UsesHistoryLimit(t *testing.T) {
	f := newFixture(t, 3)
	f.ingest(t, 1, "posts.txt")
	sess := f.session(t, 1)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.SendMessage(context.Background(), 1, sess.SessionID, fmt.Sprintf("q%d", i)); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	last := f.prov.GenerateCalls[len(f.prov.GenerateCalls)-1]
	if len(last.History) != 3 {
		t.Fatalf("expected 3 replayed turns, got %d", len(last.History))
	}
	if last.History[0].Content != "echo: q0" || last.History[2].Content != "echo: q1" {
		t.Fatalf("expected the newest turns oldest first, got %+v", last.History)
	}
	if last.Message.Content != "q2" {
		t.Fatalf("unexpected message %q", last.Message.Content)
	}
}

func TestSendMessage_SessionChecks(t *testing.T) {
	f := newFixture(t, 0)
	f.ingest(t, 1, "posts.txt")
	sess := f.session(t, 1)

	if _, err := f.svc.SendMessage(context.Background(), 99, sess.SessionID, "hi"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for foreign client, got %v", err)
	}

	if _, err := f.svc.CloseSession(context.Background(), 1, sess.SessionID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := f.svc.SendMessage(context.Background(), 1, sess.SessionID, "hi"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed session error, got %v", err)
	}

	sessions, err := f.svc.ListSessions(context.Background(), 1)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].IsActive || sessions[0].Title != "New conversation" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}
