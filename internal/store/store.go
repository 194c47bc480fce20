// Package store defines the persistence engine used for recording metadata:
// a small object store with insert, delete and sorted, filtered fetches.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/marwant/zizh/internal/recording"
)

var (
	ErrNotFound = errors.New("recording not found")
	ErrClosed   = errors.New("store closed")
)

// Backend names a persistence engine implementation.
type Backend string

const (
	BackendLevelDB Backend = "leveldb"
	BackendSQLite  Backend = "sqlite"
	BackendMemory  Backend = "memory"
)

// ParseBackend validates a configured backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendLevelDB, BackendSQLite, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("unknown storage backend %q (valid: leveldb, sqlite, memory)", s)
	}
}

// Field selects the attribute a Sort orders by.
type Field int

const (
	ByCreatedAt Field = iota
	ByName
	ByDuration
)

// Sort describes the ordering of a fetch.
type Sort struct {
	Field      Field
	Descending bool
}

// NewestFirst is the ordering every recording list is presented in.
var NewestFirst = Sort{Field: ByCreatedAt, Descending: true}

// Less orders a before b. Ties fall back to the id so results are stable
// across engines.
func (s Sort) Less(a, b recording.Recording) bool {
	c := s.compare(a, b)
	if c == 0 {
		c = strings.Compare(a.ID.String(), b.ID.String())
	}
	if s.Descending {
		return c > 0
	}
	return c < 0
}

func (s Sort) compare(a, b recording.Recording) int {
	switch s.Field {
	case ByName:
		return strings.Compare(a.Name, b.Name)
	case ByDuration:
		switch {
		case a.Duration < b.Duration:
			return -1
		case a.Duration > b.Duration:
			return 1
		}
		return 0
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

// Apply sorts recs in place.
func (s Sort) Apply(recs []recording.Recording) {
	sort.SliceStable(recs, func(i, j int) bool { return s.Less(recs[i], recs[j]) })
}

// Predicate selects the recordings a fetch returns.
type Predicate func(recording.Recording) bool

// Everything matches every recording.
func Everything(recording.Recording) bool { return true }

// Engine is the persistence engine contract the repository depends on.
type Engine interface {
	Insert(ctx context.Context, rec recording.Recording) error
	Delete(ctx context.Context, rec recording.Recording) error
	FetchAll(ctx context.Context, order Sort) ([]recording.Recording, error)
	Fetch(ctx context.Context, match Predicate, order Sort) ([]recording.Recording, error)
	Close() error
}
