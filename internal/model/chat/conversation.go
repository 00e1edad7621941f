package chat

// Conversation is a question/answer pair rebuilt from the message log.
// It is never persisted.
type Conversation struct {
	ID         string `json:"id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Confidence int    `json:"confidence"`
	Timestamp  string `json:"timestamp"`
}
