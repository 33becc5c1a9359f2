// Package citation numbers ranked chunks as sources and renders them for the
// answer model and for the reader.
package citation

import (
	"fmt"
	"strings"

	"github.com/seanblong/docsearch/pkg/models"
)

// Assemble pairs each result with its 1-based source number in rank order.
func Assemble(results []models.RankedResult) []models.Citation {
	cits := make([]models.Citation, 0, len(results))
	for i, r := range results {
		cits = append(cits, models.Citation{
			SourceNumber: i + 1,
			ChunkID:      r.Chunk.ID,
			Filename:     r.Chunk.Filename,
			PageNumber:   r.Chunk.PageNumber,
			Score:        r.Score,
			Content:      r.Chunk.Content,
		})
	}
	return cits
}

// Context renders the numbered source blocks handed to the answer model.
func Context(cits []models.Citation) string {
	var b strings.Builder
	for _, c := range cits {
		fmt.Fprintf(&b, "[Source %d] %s\n\n", c.SourceNumber, c.Content)
	}
	return b.String()
}

// Footer lists where every source came from. It is empty for no sources.
func Footer(cits []models.Citation) string {
	if len(cits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\nSource Details:\n")
	for _, c := range cits {
		fmt.Fprintf(&b, "[Source %d] %s, Page %d (Similarity: %.3f)\n", c.SourceNumber, c.Filename, c.PageNumber, c.Score)
	}
	return b.String()
}
