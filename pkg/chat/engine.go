package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"

	"github.com/abclabs/loanassist/internal/models"
	"github.com/abclabs/loanassist/internal/types"
	"github.com/abclabs/loanassist/pkg/memory"
	"github.com/abclabs/loanassist/pkg/retriever"
)

// ErrGenerationFailed wraps LLM call failures, including timeouts. When it is
// returned, no turns have been appended to memory.
var ErrGenerationFailed = errors.New("generation failed")

type EngineConfig struct {
	SystemTemplate  string
	ContextTemplate string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	// HistoryLimit caps the number of prior turns passed to the model.
	// Memory itself stays unbounded.
	HistoryLimit int
	// AnswerWithoutContext keeps answering from general knowledge when
	// retrieval is unavailable instead of surfacing the failure.
	AnswerWithoutContext bool
}

// Engine is the answer orchestrator: a single-pass pipeline per question,
// stateless except for the conversation memory it owns.
type Engine struct {
	config    EngineConfig
	retriever types.Retriever
	model     llms.Model
	memory    *memory.Buffer
}

func NewEngine(r types.Retriever, model llms.Model, mem *memory.Buffer, config EngineConfig) (*Engine, error) {
	if config.SystemTemplate == "" {
		return nil, fmt.Errorf("system template is required")
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = "Context:\n%s\n\nQuestion: %s\n\nAnswer:"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.HistoryLimit == 0 {
		config.HistoryLimit = 20
	}
	if mem == nil {
		mem = memory.NewBuffer()
	}

	return &Engine{
		config:    config,
		retriever: r,
		model:     model,
		memory:    mem,
	}, nil
}

// Memory exposes the engine's conversation buffer.
func (e *Engine) Memory() *memory.Buffer {
	return e.memory
}

// Answer retrieves context for the question, asks the model, and records the
// exchange. Memory is only appended to after a successful generation.
func (e *Engine) Answer(ctx context.Context, question string) (models.AnswerResult, error) {
	chunks, err := e.retriever.Retrieve(ctx, question)
	if err != nil {
		if !errors.Is(err, retriever.ErrUnavailable) || !e.config.AnswerWithoutContext {
			return models.AnswerResult{}, err
		}
		// Degraded mode: answer from general knowledge with no context.
		chunks = nil
	}

	prompt := fmt.Sprintf(e.config.ContextTemplate, contextBlock(chunks), question)
	messages := e.buildMessages(prompt)

	callCtx := ctx
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	resp, err := e.model.GenerateContent(callCtx, messages,
		llms.WithTemperature(e.config.Temperature),
		llms.WithMaxTokens(e.config.MaxTokens),
	)
	if err != nil {
		return models.AnswerResult{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return models.AnswerResult{}, fmt.Errorf("%w: model returned no choices", ErrGenerationFailed)
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)

	e.memory.Append(models.RoleUser, question)
	e.memory.Append(models.RoleAssistant, answer)

	return models.AnswerResult{
		Text:   answer,
		Chunks: chunks,
	}, nil
}

func (e *Engine) buildMessages(prompt string) []llms.MessageContent {
	history := e.memory.History()
	if len(history) > e.config.HistoryLimit {
		history = history[len(history)-e.config.HistoryLimit:]
	}

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, e.config.SystemTemplate))

	for _, turn := range history {
		role := schema.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}

	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, prompt))
	return messages
}

// contextBlock joins chunk texts with a divider and names each source so the
// model can tell where a passage came from. No chunks yields an empty block.
func contextBlock(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		parts = append(parts, fmt.Sprintf("Source: %s\n%s", chunk.Source, chunk.Text))
	}
	return strings.Join(parts, "\n---\n")
}
