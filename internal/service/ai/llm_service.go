package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vinaeu/insights/backend/internal/config"
	"github.com/vinaeu/insights/backend/internal/model/chat"
)

const systemPrompt = "You are an AI business analyst assistant for VinaEu AI. Analyze data and provide actionable insights about business performance, customer behavior, and strategic opportunities. Be concise and data-driven."

// Service answers analyst questions through an eino chain over the
// configured chat model.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService builds the model from cfg and compiles the prompt chain.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel)
}

// NewServiceWithModel compiles the prompt chain around an existing model.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Complete implements the chat service's Completer.
func (s *Service) Complete(ctx context.Context, query string, history []chat.Message) (string, error) {
	ctx, span := otel.Tracer("insights/ai").Start(ctx, "chat_completion")
	defer span.End()

	response, err := s.chain.Invoke(ctx, map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(history),
		"query":   query,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chain failed")
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || response.Content == "" {
		span.SetStatus(codes.Error, "empty response")
		return "", fmt.Errorf("empty response from chat model")
	}

	span.SetAttributes(attribute.Int("response.length", len(response.Content)))
	slog.Debug("generated answer", "length", len(response.Content), "history", len(history))
	return response.Content, nil
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
