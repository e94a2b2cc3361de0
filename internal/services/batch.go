package services

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// BatchFailure is one write of a fan-out that did not go through
type BatchFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
	err   error
}

// BatchResult reports every write of a best-effort fan-out. Failed writes do
// not undo the succeeded ones.
type BatchResult struct {
	Succeeded []string       `json:"succeeded"`
	Failed    []BatchFailure `json:"failed"`

	mu sync.Mutex
}

// NewBatchResult returns an empty result
func NewBatchResult() *BatchResult {
	return &BatchResult{Succeeded: []string{}, Failed: []BatchFailure{}}
}

func (b *BatchResult) succeed(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Succeeded = append(b.Succeeded, id)
}

func (b *BatchResult) fail(id string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Failed = append(b.Failed, BatchFailure{ID: id, Error: err.Error(), err: err})
}

// Merge appends the items of other
func (b *BatchResult) Merge(other *BatchResult) {
	if other == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Succeeded = append(b.Succeeded, other.Succeeded...)
	b.Failed = append(b.Failed, other.Failed...)
}

// sort orders items by id so results do not depend on goroutine scheduling
func (b *BatchResult) sort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	slices.Sort(b.Succeeded)
	slices.SortStableFunc(b.Failed, func(x, y BatchFailure) int {
		return strings.Compare(x.ID, y.ID)
	})
}

// Err combines the failures, nil when everything succeeded
func (b *BatchResult) Err() error {
	if b == nil {
		return nil
	}
	var err error
	for _, f := range b.Failed {
		cause := f.err
		if cause == nil {
			cause = errors.New(f.Error)
		}
		err = multierr.Append(err, fmt.Errorf("%s: %w", f.ID, cause))
	}
	return err
}

func registrationPath(id string) string { return "registrations/" + id }

func checkinPath(id string) string { return "checkins/" + id }
