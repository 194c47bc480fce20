// Package repository persists recording metadata through a store.Engine and
// keeps the backing audio files in step with it.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marwant/zizh/internal/files"
	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/store"
)

// ErrClosed is returned by every operation once the repository is closed.
var ErrClosed = errors.New("repository closed")

// DeletionError reports that a recording's metadata could not be removed.
type DeletionError struct {
	Recording recording.Recording
	Err       error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("delete recording %s: %v", e.Recording.ID, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

// Repository is the storage contract the rest of the application depends on.
type Repository interface {
	AddRecording(ctx context.Context, rec recording.Recording) error
	DeleteRecording(ctx context.Context, rec recording.Recording) error
	FetchRecords(ctx context.Context) ([]recording.Recording, error)
	Files() *files.Locations
}

// Storage implements Repository on top of a persistence engine.
type Storage struct {
	engine store.Engine
	files  *files.Locations

	mu     sync.RWMutex
	closed bool
}

var _ Repository = (*Storage)(nil)

func New(engine store.Engine, locations *files.Locations) *Storage {
	return &Storage{engine: engine, files: locations}
}

func (s *Storage) Files() *files.Locations { return s.files }

// AddRecording stores rec with its address normalised to the relative form.
// It returns once the engine has acknowledged the write.
func (s *Storage) AddRecording(ctx context.Context, rec recording.Recording) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	rel, err := s.files.MakeRelative(rec.Address)
	if err != nil {
		return fmt.Errorf("add recording %s: %w", rec.ID, err)
	}
	rec.Address = rel

	if err := s.engine.Insert(ctx, rec); err != nil {
		return fmt.Errorf("add recording %s: %w", rec.ID, err)
	}
	slog.Debug("Recording stored", "id", rec.ID, "address", rec.Address)
	return nil
}

// DeleteRecording removes the metadata entry and then the backing file.
// Only the metadata removal can fail the operation.
func (s *Storage) DeleteRecording(ctx context.Context, rec recording.Recording) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	if err := s.engine.Delete(ctx, rec); err != nil {
		return &DeletionError{Recording: rec, Err: err}
	}
	s.files.DeleteRecording(s.files.MakeAbsolute(rec.Address))
	slog.Debug("Recording deleted", "id", rec.ID)
	return nil
}

// FetchRecords returns every stored recording, newest first.
func (s *Storage) FetchRecords(ctx context.Context) ([]recording.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	recs, err := s.engine.FetchAll(ctx, store.NewestFirst)
	if err != nil {
		return nil, fmt.Errorf("fetch recordings: %w", err)
	}
	return recs, nil
}

// Close closes the underlying engine. Later calls are no-ops.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.engine.Close()
}
