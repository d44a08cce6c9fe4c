package models

import "time"

// Document is a raw source text plus its origin. Immutable once loaded.
type Document struct {
	ID       string
	Source   string // filename or URL
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a bounded-length segment of a Document used as the unit of
// retrieval. Text is the exact substring of the document content starting at
// byte Offset, which is what makes the lossless reconstruction check possible.
type Chunk struct {
	ID         string
	DocumentID string
	Source     string
	Index      int
	Offset     int
	Text       string
}

// SearchResult pairs a chunk with its similarity score for one query.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role    string
	Content string
	At      time.Time
}

// AnswerResult is an answer plus the chunks that were placed in its context.
type AnswerResult struct {
	Text   string
	Chunks []Chunk
}
