// Package ai wraps the external category-suggestion service. The classifier
// in models depends only on the CategorySuggester interface so the network
// client can be swapped out (or stubbed) and is never called inside a
// database transaction.
package ai

import (
	"context"

	"github.com/shopspring/decimal"
)

// CandidateCategory is a leaf category the service may pick from.
type CandidateCategory struct {
	Id   int
	Name string
}

// Suggestion is the service's answer. CategoryId is 0 when it declined.
type Suggestion struct {
	CategoryId int
	Confidence float64
}

// CategorySuggester is treated as unreliable: callers must degrade to the
// next tier on any error rather than propagate it.
type CategorySuggester interface {
	Suggest(ctx context.Context, description string, amount decimal.Decimal, candidates []CandidateCategory) (Suggestion, error)
}
