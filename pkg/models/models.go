package models

import (
	"fmt"
	"time"
)

// Chunk is a retrievable slice of document text with its embedding and
// citation metadata. Chunks are written once per ingestion and never mutated.
type Chunk struct {
	ID         string    `json:"chunk_id"`
	Filename   string    `json:"filename"`
	PageNumber int       `json:"page_number"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
}

// ChunkID builds the identifier of the ordinal-th chunk of a document.
func ChunkID(filename string, ordinal int) string {
	return fmt.Sprintf("%s_chunk_%d", filename, ordinal)
}

// RankedResult is a chunk scored against one query. Score is higher-is-better
// for every strategy; Distance is the raw backend distance when the backend
// reports one.
type RankedResult struct {
	Chunk    Chunk   `json:"chunk"`
	Score    float64 `json:"score"`
	Distance float64 `json:"distance,omitempty"`
	Rank     int     `json:"rank"`
}

// Citation pairs a ranked chunk with the 1-based source number used as the
// inline marker in a composed answer.
type Citation struct {
	SourceNumber int     `json:"source_number"`
	ChunkID      string  `json:"chunk_id"`
	Filename     string  `json:"filename"`
	PageNumber   int     `json:"page_number"`
	Score        float64 `json:"score"`
	Content      string  `json:"content,omitempty"`
}

type Answer struct {
	Query     string     `json:"query"`
	Text      string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Strategy  string     `json:"strategy,omitempty"`
}

// IngestReport summarises one ingestion run. Failed chunks never abort a run.
type IngestReport struct {
	RunID     string        `json:"run_id"`
	Documents int           `json:"documents"`
	Chunks    int           `json:"chunks"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Reused    int           `json:"reused"`
	Duration  time.Duration `json:"duration"`
}
