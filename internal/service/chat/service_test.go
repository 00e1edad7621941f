package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	authmodel "github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/model/chat"
	chatservice "github.com/vinaeu/insights/backend/internal/service/chat"
	"github.com/vinaeu/insights/backend/internal/store"
	"github.com/vinaeu/insights/backend/internal/store/memory"
)

type stubCompleter struct {
	answer  string
	err     error
	prompts []string
	history [][]chat.Message
}

func (s *stubCompleter) Complete(_ context.Context, prompt string, history []chat.Message) (string, error) {
	s.prompts = append(s.prompts, prompt)
	s.history = append(s.history, history)
	return s.answer, s.err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestServiceAskAppendsPair(t *testing.T) {
	st := memory.New()
	completer := &stubCompleter{answer: "Revenue grew 12%."}
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	svc := chatservice.NewService(st, completer, chatservice.WithClock(fixedClock(now)))
	ctx := context.Background()
	u := authmodel.User{ID: "user-1"}

	answer, err := svc.Ask(ctx, u, "  How is revenue?  ")
	if err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	if answer.Text != "Revenue grew 12%." || answer.Confidence != chatservice.AnswerConfidence {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if completer.prompts[0] != "How is revenue?" {
		t.Fatalf("question not trimmed: %q", completer.prompts[0])
	}

	log, err := st.ListRecent(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("ListRecent err: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(log))
	}
	if log[0].Role != chat.RoleAssistant || log[1].Role != chat.RoleUser {
		t.Fatalf("unexpected roles: %s, %s", log[0].Role, log[1].Role)
	}
	if !log[0].CreatedAt.After(log[1].CreatedAt) {
		t.Fatalf("answer must be strictly later than question: %v vs %v", log[0].CreatedAt, log[1].CreatedAt)
	}
	if log[0].Confidence == nil || *log[0].Confidence != chatservice.AnswerConfidence {
		t.Fatalf("answer confidence not stored: %v", log[0].Confidence)
	}
}

func TestServiceAskPassesChronologicalContext(t *testing.T) {
	st := memory.New()
	completer := &stubCompleter{answer: "ok"}
	svc := chatservice.NewService(st, completer)
	ctx := context.Background()
	u := authmodel.User{ID: "user-1"}

	if _, err := svc.Ask(ctx, u, "first"); err != nil {
		t.Fatalf("Ask err: %v", err)
	}
	if _, err := svc.Ask(ctx, u, "second"); err != nil {
		t.Fatalf("Ask err: %v", err)
	}

	history := completer.history[1]
	if len(history) != 2 {
		t.Fatalf("expected 2 context messages, got %d", len(history))
	}
	if history[0].Content != "first" || history[1].Content != "ok" {
		t.Fatalf("context not chronological: %+v", history)
	}
}

func TestServiceAskCompletionFailureAppendsNothing(t *testing.T) {
	st := memory.New()
	svc := chatservice.NewService(st, &stubCompleter{err: errors.New("boom")})
	ctx := context.Background()

	_, err := svc.Ask(ctx, authmodel.User{ID: "user-1"}, "question")
	if !errors.Is(err, chatservice.ErrCompletion) {
		t.Fatalf("expected ErrCompletion, got %v", err)
	}

	log, _ := st.ListRecent(ctx, "user-1", 10)
	if len(log) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(log))
	}
}

func TestServiceAskWithoutCompleter(t *testing.T) {
	svc := chatservice.NewService(memory.New(), nil)
	if _, err := svc.Ask(context.Background(), authmodel.User{ID: "u"}, "q"); !errors.Is(err, chatservice.ErrCompletion) {
		t.Fatalf("expected ErrCompletion, got %v", err)
	}
}

func TestServiceAskEmptyQuestion(t *testing.T) {
	svc := chatservice.NewService(memory.New(), &stubCompleter{answer: "x"})
	if _, err := svc.Ask(context.Background(), authmodel.User{ID: "u"}, "   "); !errors.Is(err, chatservice.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestServiceHistoryNewestFirst(t *testing.T) {
	st := memory.New()
	completer := &stubCompleter{}
	clock := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	svc := chatservice.NewService(st, completer, chatservice.WithClock(func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}))
	ctx := context.Background()
	u := authmodel.User{ID: "user-1"}

	for _, q := range []string{"q1", "q2"} {
		completer.answer = "answer to " + q
		if _, err := svc.Ask(ctx, u, q); err != nil {
			t.Fatalf("Ask err: %v", err)
		}
	}

	conversations, err := svc.History(ctx, "user-1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(conversations))
	}
	if conversations[0].Question != "q2" || conversations[0].ID != "1" {
		t.Fatalf("newest conversation should come first: %+v", conversations[0])
	}
	if conversations[1].Question != "q1" || conversations[1].Answer != "answer to q1" {
		t.Fatalf("unexpected second conversation: %+v", conversations[1])
	}
	if conversations[0].Timestamp != "2025-01-15 12:04" {
		t.Fatalf("unexpected timestamp: %s", conversations[0].Timestamp)
	}
}

func TestServiceHistoryEmpty(t *testing.T) {
	svc := chatservice.NewService(memory.New(), nil)
	conversations, err := svc.History(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(conversations) != 0 {
		t.Fatalf("expected no conversations, got %d", len(conversations))
	}
}

// flakyLog fails every write of an assistant message once broken is set.
type flakyLog struct {
	*memory.Store
	broken bool
}

func (l *flakyLog) AppendMessage(ctx context.Context, message chat.Message) (chat.Message, error) {
	if l.broken && message.Role == chat.RoleAssistant {
		return chat.Message{}, store.ErrUnavailable
	}
	return l.Store.AppendMessage(ctx, message)
}

func (l *flakyLog) AppendTurn(ctx context.Context, question, answer chat.Message) (chat.Message, chat.Message, error) {
	if l.broken {
		return chat.Message{}, chat.Message{}, store.ErrUnavailable
	}
	return l.Store.AppendTurn(ctx, question, answer)
}

func TestServiceAskStoreFailureKeepsHistory(t *testing.T) {
	log := &flakyLog{Store: memory.New()}
	clock := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	svc := chatservice.NewService(log, &stubCompleter{answer: "ok"}, chatservice.WithClock(tick))
	ctx := context.Background()
	u := authmodel.User{ID: "user-1"}

	for _, q := range []string{"q1", "q2", "q3"} {
		if _, err := svc.Ask(ctx, u, q); err != nil {
			t.Fatalf("Ask(%s) err: %v", q, err)
		}
	}

	log.broken = true
	if _, err := svc.Ask(ctx, u, "q4"); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	log.broken = false

	messages, err := log.ListRecent(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("ListRecent err: %v", err)
	}
	if len(messages) != 6 {
		t.Fatalf("failed ask must leave the log untouched, got %d messages", len(messages))
	}

	history, err := svc.History(ctx, "user-1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(history))
	}
	if history[0].Question != "q3" || history[2].Question != "q1" {
		t.Fatalf("unexpected history order: %+v", history)
	}

	if _, err := svc.Ask(ctx, u, "q5"); err != nil {
		t.Fatalf("Ask after recovery err: %v", err)
	}
	history, err = svc.History(ctx, "user-1")
	if err != nil {
		t.Fatalf("History err: %v", err)
	}
	if len(history) != 4 || history[0].Question != "q5" {
		t.Fatalf("unexpected history after recovery: %+v", history)
	}
}
