package indexer

import (
	"path/filepath"
	"strings"

	"github.com/seanblong/docsearch/pkg/models"
)

const (
	chunkWords    = 500
	minChunkChars = 50
)

// Page is the text of one 1-based page of a document.
type Page struct {
	Number int
	Text   string
}

// PageReader turns a document into its pages. Extraction from binary formats
// such as PDF plugs in here.
type PageReader interface {
	Supports(path string) bool
	ReadPages(path string) ([]Page, error)
}

// TextPageReader reads plain text and markdown. A form feed starts a new
// page; pages without text are left out but keep their numbers.
type TextPageReader struct {
	Files FileReader
}

func (r *TextPageReader) Supports(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".text", ".md", ".markdown":
		return true
	}
	return false
}

func (r *TextPageReader) ReadPages(path string) ([]Page, error) {
	b, err := r.Files.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitPages(string(b)), nil
}

func splitPages(text string) []Page {
	var pages []Page
	for i, t := range strings.Split(text, "\f") {
		if strings.TrimSpace(t) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: t})
	}
	return pages
}

// chunkPages splits every page into runs of chunkWords words. Chunk ordinals
// count across the whole document; runs of minChunkChars characters or less
// are dropped without using up an ordinal.
func chunkPages(filename string, pages []Page) []models.Chunk {
	var chunks []models.Chunk
	for _, p := range pages {
		words := strings.Fields(p.Text)
		for i := 0; i < len(words); i += chunkWords {
			text := strings.Join(words[i:min(i+chunkWords, len(words))], " ")
			if len(strings.TrimSpace(text)) <= minChunkChars {
				continue
			}
			chunks = append(chunks, models.Chunk{
				ID:         models.ChunkID(filename, len(chunks)),
				Filename:   filename,
				PageNumber: p.Number,
				Content:    text,
			})
		}
	}
	return chunks
}
