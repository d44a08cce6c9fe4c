package memory

import (
	"sync"
	"time"

	"github.com/abclabs/loanassist/internal/models"
)

// Buffer is an append-only conversation log. It enforces no size bound;
// callers that care about token cost truncate the history they pass to the
// model (the orchestrator's history limit does exactly that).
type Buffer struct {
	mu    sync.Mutex
	turns []models.Turn
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append records a turn at the end of the history.
func (b *Buffer) Append(role, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = append(b.turns, models.Turn{
		Role:    role,
		Content: content,
		At:      time.Now(),
	})
}

// History returns all turns in chronological order. The returned slice is a
// copy; mutating it does not affect the buffer.
func (b *Buffer) History() []models.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Len reports the number of recorded turns.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}

// Clear resets the history to empty.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = nil
}
