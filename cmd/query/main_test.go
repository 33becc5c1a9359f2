package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/seanblong/docsearch/internal/search"
	"github.com/seanblong/docsearch/pkg/models"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

type MockAnswerer struct {
	QueryFunc func(ctx context.Context, q string, k int) (models.Answer, error)
	Queries   []string
}

func (m *MockAnswerer) Query(ctx context.Context, q string, k int) (models.Answer, error) {
	m.Queries = append(m.Queries, q)
	return m.QueryFunc(ctx, q, k)
}

func TestRepl(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		answer      models.Answer
		err         error
		wantQueries int
		want        string
		notWant     string
	}{
		{
			name:        "prints the answer",
			input:       "when is trash day?\nquit\n",
			answer:      models.Answer{Text: "Tuesday [Source 1]"},
			wantQueries: 1,
			want:        "Tuesday [Source 1]",
		},
		{
			name:        "embedding failure is reported",
			input:       "when is trash day?\n",
			answer:      models.Answer{Query: "when is trash day?", Citations: []models.Citation{}},
			err:         search.ErrEmbeddingUnavailable,
			wantQueries: 1,
			want:        embeddingUnavailableText,
			notWant:     search.NoResultsAnswer,
		},
		{
			name:        "other failures are reported",
			input:       "when is trash day?\n",
			err:         errors.New("boom"),
			wantQueries: 1,
			want:        queryFailedText,
		},
		{
			name:        "blank lines are ignored and exit stops",
			input:       "\n   \nEXIT\nnever asked\n",
			wantQueries: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockAnswerer{QueryFunc: func(ctx context.Context, q string, k int) (models.Answer, error) {
				if k != 5 {
					t.Errorf("k = %d, want 5", k)
				}
				return tt.answer, tt.err
			}}
			var out bytes.Buffer
			repl(context.Background(), strings.NewReader(tt.input), &out, svc, 5)

			if len(svc.Queries) != tt.wantQueries {
				t.Errorf("queries = %v, want %d", svc.Queries, tt.wantQueries)
			}
			if tt.want != "" && !strings.Contains(out.String(), tt.want) {
				t.Errorf("output %q does not contain %q", out.String(), tt.want)
			}
			if tt.notWant != "" && strings.Contains(out.String(), tt.notWant) {
				t.Errorf("output %q should not contain %q", out.String(), tt.notWant)
			}
		})
	}
}
