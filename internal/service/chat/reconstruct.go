package chat

import (
	"strconv"

	"github.com/vinaeu/insights/backend/internal/model/chat"
)

const (
	// DefaultConfidence is reported for answers stored without a score.
	DefaultConfidence = 90
	// TimestampLayout renders conversation timestamps to minute precision.
	TimestampLayout = "2006-01-02 15:04"
)

// Reconstruct pairs a newest-first message log into conversations.
//
// Entries are read two at a time: an assistant message at i answers the user
// message at i+1. Any window that is not exactly (assistant, user), including
// a trailing single entry, is skipped without affecting later windows. Only
// the first limit messages are considered; limit <= 0 means no cap.
func Reconstruct(messages []chat.Message, limit int) []chat.Conversation {
	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}

	conversations := make([]chat.Conversation, 0, len(messages)/2)
	for i := 0; i < len(messages); i += 2 {
		if i+1 >= len(messages) {
			break
		}
		answer, question := messages[i], messages[i+1]
		if answer.Role != chat.RoleAssistant || question.Role != chat.RoleUser {
			continue
		}

		confidence := DefaultConfidence
		if answer.Confidence != nil {
			confidence = *answer.Confidence
		}

		conversations = append(conversations, chat.Conversation{
			ID:         strconv.Itoa(len(conversations) + 1),
			Question:   question.Content,
			Answer:     answer.Content,
			Confidence: confidence,
			Timestamp:  answer.CreatedAt.UTC().Format(TimestampLayout),
		})
	}
	return conversations
}
