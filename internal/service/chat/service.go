package chat

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	authmodel "github.com/vinaeu/insights/backend/internal/model/auth"
	"github.com/vinaeu/insights/backend/internal/model/chat"
	"github.com/vinaeu/insights/backend/internal/store"
	"github.com/vinaeu/insights/backend/internal/telemetry"
)

const (
	// HistoryPageSize caps the number of log entries read for history.
	HistoryPageSize = 50
	// AnswerConfidence is stored with every generated answer.
	AnswerConfidence = 92

	contextLimit = 10
	lockStripes  = 64
)

var (
	ErrEmptyQuestion = errors.New("question is required")
	ErrCompletion    = errors.New("chat completion failed")
)

// Completer produces an answer for prompt given the prior conversation in
// chronological order.
type Completer interface {
	Complete(ctx context.Context, prompt string, history []chat.Message) (string, error)
}

// Answer is the result of a successful Ask.
type Answer struct {
	Text       string
	Confidence int
	Timestamp  time.Time
}

// Service records question/answer turns and rebuilds history from the log.
type Service struct {
	log       store.MessageLog
	completer Completer
	now       func() time.Time
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	// stripes keep one user's user/assistant appends adjacent in the log.
	stripes [lockStripes]sync.Mutex
}

// Option customises a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService builds a chat service. completer may be nil when no model is
// configured; Ask then fails with ErrCompletion.
func NewService(log store.MessageLog, completer Completer, opts ...Option) *Service {
	s := &Service{
		log:       log,
		completer: completer,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers question for user and appends the user/assistant pair to the
// log. Nothing is appended when the completion or the store write fails.
func (s *Service) Ask(ctx context.Context, user authmodel.User, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	if s.completer == nil {
		s.metrics.ObserveCompletion("unconfigured")
		return Answer{}, fmt.Errorf("%w: no completion provider configured", ErrCompletion)
	}

	recent, err := s.log.ListRecent(ctx, user.ID, contextLimit)
	if err != nil {
		return Answer{}, fmt.Errorf("load context: %w", err)
	}
	history := make([]chat.Message, len(recent))
	for i, msg := range recent {
		history[len(recent)-1-i] = msg
	}

	text, err := s.completer.Complete(ctx, question, history)
	if err != nil {
		s.metrics.ObserveCompletion("error")
		s.logger.Error("chat completion failed", "user_id", user.ID, "error", err)
		return Answer{}, fmt.Errorf("%w: %w", ErrCompletion, err)
	}
	s.metrics.ObserveCompletion("ok")

	answer, err := s.appendTurn(ctx, user.ID, question, text)
	if err != nil {
		return Answer{}, err
	}
	return answer, nil
}

func (s *Service) appendTurn(ctx context.Context, userID, question, text string) (Answer, error) {
	mu := s.stripe(userID)
	mu.Lock()
	defer mu.Unlock()

	askedAt := s.now().UTC()
	answeredAt := s.now().UTC()
	if !answeredAt.After(askedAt) {
		answeredAt = askedAt.Add(time.Microsecond)
	}
	confidence := AnswerConfidence

	// Both entries land together or not at all.
	_, _, err := s.log.AppendTurn(ctx,
		chat.Message{
			UserID:    userID,
			Role:      chat.RoleUser,
			Content:   question,
			CreatedAt: askedAt,
		},
		chat.Message{
			UserID:     userID,
			Role:       chat.RoleAssistant,
			Content:    text,
			Confidence: &confidence,
			CreatedAt:  answeredAt,
		},
	)
	if err != nil {
		s.logger.Error("failed to record chat turn", "user_id", userID, "error", err)
		return Answer{}, fmt.Errorf("append turn: %w", err)
	}

	return Answer{Text: text, Confidence: confidence, Timestamp: answeredAt}, nil
}

func (s *Service) stripe(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.stripes[h.Sum32()%lockStripes]
}

// History returns the user's reconstructed conversations, newest first.
func (s *Service) History(ctx context.Context, userID string) ([]chat.Conversation, error) {
	messages, err := s.log.ListRecent(ctx, userID, HistoryPageSize)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return Reconstruct(messages, HistoryPageSize), nil
}
