package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/abclabs/loanassist/internal/models"
)

// Loader reads source documents from a filesystem directory. PDF files are
// extracted with ledongthuc/pdf; plain text files (the scraper's output) are
// read as-is.
type Loader struct{}

func New() *Loader {
	return &Loader{}
}

// Load returns a document per eligible file, in lexical filename order. Files
// that cannot be parsed are skipped and reported in the warnings slice; an
// empty directory or a glob with no matches yields an empty result, not an
// error.
func (l *Loader) Load(dir, glob string) ([]models.Document, []error) {
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	if err != nil {
		return nil, []error{fmt.Errorf("invalid glob %q: %v", glob, err)}
	}
	sort.Strings(matches)

	var docs []models.Document
	var warnings []error

	for _, path := range matches {
		content, err := readFile(path)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("skipping %s: %v", path, err))
			continue
		}
		if strings.TrimSpace(content) == "" {
			warnings = append(warnings, fmt.Errorf("skipping %s: no extractable text", path))
			continue
		}

		docs = append(docs, models.Document{
			ID:      uuid.NewString(),
			Source:  path,
			Title:   strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Content: content,
			Metadata: map[string]interface{}{
				"filename": filepath.Base(path),
			},
		})
	}

	return docs, warnings
}

func readFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return readPDF(path)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func readPDF(path string) (_ string, err error) {
	// The pdf package panics on some malformed files; treat that as a
	// per-file parse failure like any other.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parse failure: %v", r)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %v", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}
