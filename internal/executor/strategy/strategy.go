package strategy

import (
	"context"
	"sync/atomic"

	"golang-trend-publisher/internal/executor/dto"
	"golang-trend-publisher/internal/executor/source"
)

// SourceFetchStrategy fetches the raw entries of one kind of source.
type SourceFetchStrategy interface {
	Fetch(ctx context.Context, src source.Source, budget Budget) ([]dto.RawItem, error)
	GetType() source.Kind
}

// Budget caps the number of entries fetched across all sources of a run.
type Budget interface {
	// Take reserves one entry, returning false when the budget is exhausted.
	Take() bool
}

// CountingBudget is a Budget shared by concurrent fetches.
type CountingBudget struct {
	remaining atomic.Int64
}

// NewCountingBudget returns a budget of n entries. n <= 0 means unlimited.
func NewCountingBudget(n int) *CountingBudget {
	b := &CountingBudget{}
	if n <= 0 {
		b.remaining.Store(-1)
		return b
	}
	b.remaining.Store(int64(n))
	return b
}

func (b *CountingBudget) Take() bool {
	for {
		cur := b.remaining.Load()
		if cur < 0 {
			return true
		}
		if cur == 0 {
			return false
		}
		if b.remaining.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}
