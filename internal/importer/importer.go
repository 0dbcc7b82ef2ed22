// Package importer turns uploaded transcript files into conversations.
package importer

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dgallion1/convoscope/internal/conversation"
)

// Transcript is a parsed file before it becomes a stored conversation.
// Structured formats may carry their own metadata.
type Transcript struct {
	Title    string
	ID       string
	Model    string
	Language string
	Turn     int
	Redacted bool
	Messages []conversation.Message
}

// Parser reads one file format.
type Parser interface {
	Parse(r io.Reader, filename string) (*Transcript, error)
}

// Options tune parsing.
type Options struct {
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists file extensions that can be imported.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
	".json":     true,
}

// ForFile returns the parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	case ".json":
		return &JSONParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Meta overrides transcript metadata supplied with an upload.
type Meta struct {
	Model    string
	Language string
}

// Import parses r and returns the conversation to store. A transcript
// without an id gets a fresh one; a missing turn count defaults to the
// number of user messages.
func Import(r io.Reader, filename string, meta Meta, opts Options) (conversation.Document, error) {
	p, err := ForFile(filename, opts)
	if err != nil {
		return conversation.Document{}, err
	}
	t, err := p.Parse(r, filename)
	if err != nil {
		return conversation.Document{}, err
	}
	if len(t.Messages) == 0 {
		return conversation.Document{}, fmt.Errorf("%s: no messages found", filename)
	}

	doc := conversation.Document{
		ID:       strings.TrimSpace(t.ID),
		Model:    t.Model,
		Language: t.Language,
		Turn:     t.Turn,
		Redacted: t.Redacted,
		Messages: t.Messages,
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if meta.Model != "" {
		doc.Model = meta.Model
	}
	if meta.Language != "" {
		doc.Language = meta.Language
	}
	if doc.Turn <= 0 {
		for _, m := range doc.Messages {
			if m.Role == RoleUser {
				doc.Turn++
			}
		}
	}
	return doc, nil
}

func baseTitle(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
