package processor_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abclabs/loanassist/internal/models"
	"github.com/abclabs/loanassist/pkg/processor"
)

func loanDoc(content string) models.Document {
	return models.Document{
		ID:      "doc1",
		Source:  "data/personal_loan_info.pdf",
		Content: content,
	}
}

func TestProcessShortDocument(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    100,
		ChunkOverlap: 20,
	})

	chunks, err := p.Process([]models.Document{loanDoc("Loan tenure is 12-60 months.")})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Loan tenure is 12-60 months.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Offset)
	assert.Equal(t, "doc1_0", chunks[0].ID)
}

func TestProcessEmptyDocument(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	chunks, err := p.Process([]models.Document{loanDoc("   \n\n  ")})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkLengthBound(t *testing.T) {
	text := strings.Repeat("Interest rates start at 10.5% for salaried applicants. ", 200)

	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"small chunks", 80, 10},
		{"default-ish", 500, 100},
		{"large overlap", 120, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := processor.NewWithConfig(processor.ProcessorConfig{
				ChunkSize:    tt.size,
				ChunkOverlap: tt.overlap,
			})

			chunks, err := p.Process([]models.Document{loanDoc(text)})
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			for _, chunk := range chunks {
				assert.LessOrEqual(t, len(chunk.Text), tt.size)
			}
		})
	}
}

func TestChunksAreExactSubstrings(t *testing.T) {
	text := "Personal loans from ABC Bank.\n\nEligibility: minimum salary $2000.\nTenure: 12-60 months.\n\nInterest rate starts at 10.5%."
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    40,
		ChunkOverlap: 10,
	})

	chunks, err := p.Process([]models.Document{loanDoc(text)})
	require.NoError(t, err)

	for _, chunk := range chunks {
		require.LessOrEqual(t, chunk.Offset+len(chunk.Text), len(text))
		assert.Equal(t, text[chunk.Offset:chunk.Offset+len(chunk.Text)], chunk.Text)
	}
}

// Concatenating each chunk's non-overlap region must rebuild the document.
func TestRoundTripReconstruction(t *testing.T) {
	paragraphs := []string{
		"ABC Bank offers personal loans for salaried and self-employed applicants with flexible repayment options.",
		"The interest rate starts at 10.5% per annum and depends on the applicant's credit score and income.",
		"Loan tenure ranges from 12 to 60 months. Prepayment is allowed after six months without penalty.",
		"Eligibility requires a minimum monthly salary of $2000 and at least one year with the current employer.",
	}
	text := strings.Join(paragraphs, "\n\n")

	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    120,
		ChunkOverlap: 30,
	})

	chunks, err := p.Process([]models.Document{loanDoc(text)})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var sb strings.Builder
	covered := 0
	for _, chunk := range chunks {
		end := chunk.Offset + len(chunk.Text)
		require.LessOrEqual(t, chunk.Offset, covered, "gap before chunk %d", chunk.Index)
		if end > covered {
			sb.WriteString(chunk.Text[covered-chunk.Offset:])
			covered = end
		}
	}

	assert.Equal(t, text, sb.String())
}

func TestConsecutiveChunksOverlap(t *testing.T) {
	text := strings.Repeat("tenure and interest rate details for personal loan applicants ", 50)
	overlap := 25

	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    150,
		ChunkOverlap: overlap,
	})

	chunks, err := p.Process([]models.Document{loanDoc(text)})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prevEnd := chunks[i-1].Offset + len(chunks[i-1].Text)
		assert.Equal(t, prevEnd-overlap, chunks[i].Offset)
	}
}

func TestPrefersParagraphBoundaries(t *testing.T) {
	text := "First paragraph about personal loans.\n\nSecond paragraph about interest rates and tenure which runs a bit longer."

	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    60,
		ChunkOverlap: 5,
	})

	chunks, err := p.Process([]models.Document{loanDoc(text)})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	// The first cut should land on the paragraph break, not mid-word.
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"), "got %q", chunks[0].Text)
}

func TestOverlapNotSmallerThanChunkSize(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    100,
		ChunkOverlap: 100,
	})

	_, err := p.Process([]models.Document{loanDoc("some content")})
	assert.Error(t, err)
}
