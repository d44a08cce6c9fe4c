package processor

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abclabs/loanassist/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// Separators are tried coarse-to-fine when looking for a cut point. The
	// empty string means a hard cut at the size limit.
	Separators []string
}

type Processor struct {
	config ProcessorConfig
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 2000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 500
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", " ", ""}
	}

	return Processor{
		config: config,
	}
}

// Process splits each document into chunks of at most ChunkSize bytes, with
// consecutive chunks of the same document sharing ChunkOverlap bytes. Chunk
// texts are exact substrings of the document content, so concatenating the
// non-overlap regions reconstructs it.
func (p *Processor) Process(docs []models.Document) ([]models.Chunk, error) {
	if p.config.ChunkOverlap >= p.config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d",
			p.config.ChunkOverlap, p.config.ChunkSize)
	}

	var chunks []models.Chunk
	for _, doc := range docs {
		for i, span := range p.splitText(doc.Content) {
			chunks = append(chunks, models.Chunk{
				ID:         fmt.Sprintf("%s_%d", doc.ID, i),
				DocumentID: doc.ID,
				Source:     doc.Source,
				Index:      i,
				Offset:     span.start,
				Text:       doc.Content[span.start:span.end],
			})
		}
	}

	return chunks, nil
}

type span struct {
	start, end int
}

func (p *Processor) splitText(text string) []span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var spans []span
	start := 0

	for {
		if len(text)-start <= p.config.ChunkSize {
			spans = append(spans, span{start, len(text)})
			return spans
		}

		end := p.cutPoint(text, start, start+p.config.ChunkSize)
		spans = append(spans, span{start, end})

		next := end - p.config.ChunkOverlap
		// The rune-boundary backoff on a hard cut can eat into a very
		// tight overlap margin; never move backwards.
		if next <= start {
			next = end
		}
		start = next
	}
}

// cutPoint finds where to end a chunk that starts at start and may extend to
// limit at most. Separators are tried in order; the cut lands just after the
// last occurrence inside the window, so paragraph and sentence boundaries win
// over mid-word cuts. A cut is only accepted when it reaches past the overlap
// region, otherwise the next chunk would make no progress.
func (p *Processor) cutPoint(text string, start, limit int) int {
	window := text[start:limit]

	for _, sep := range p.config.Separators {
		if sep == "" {
			break
		}
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			end := start + idx + len(sep)
			if end > start+p.config.ChunkOverlap {
				return end
			}
		}
	}

	// Hard cut, backed off to a rune boundary so multi-byte characters
	// survive intact.
	for limit > start+1 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return limit
}
