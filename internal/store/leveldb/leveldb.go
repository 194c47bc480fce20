// Package leveldb stores recording metadata in a LevelDB-backed datastore,
// one JSON document per recording under /recordings/<id>.
package leveldb

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"github.com/marwant/zizh/internal/recording"
	"github.com/marwant/zizh/internal/store"
)

const recordingsPrefix = "/recordings"

type Store struct {
	mu     sync.RWMutex
	db     *dslvl.Datastore
	closed bool
}

// Open opens (or creates) the datastore in the directory at path.
func Open(path string) (*Store, error) {
	db, err := dslvl.NewDatastore(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb datastore %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func recordingKey(rec recording.Recording) ds.Key {
	return ds.NewKey(recordingsPrefix).ChildString(rec.ID.String())
}

func (s *Store) Insert(ctx context.Context, rec recording.Recording) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode recording %s: %w", rec.ID, err)
	}
	if err := s.db.Put(ctx, recordingKey(rec), b); err != nil {
		return fmt.Errorf("put recording %s: %w", rec.ID, err)
	}
	return s.db.Sync(ctx, recordingKey(rec))
}

func (s *Store) Delete(ctx context.Context, rec recording.Recording) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}

	k := recordingKey(rec)
	exists, err := s.db.Has(ctx, k)
	if err != nil {
		return fmt.Errorf("lookup recording %s: %w", rec.ID, err)
	}
	if !exists {
		return store.ErrNotFound
	}
	if err := s.db.Delete(ctx, k); err != nil {
		return fmt.Errorf("delete recording %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context, order store.Sort) ([]recording.Recording, error) {
	return s.Fetch(ctx, store.Everything, order)
}

func (s *Store) Fetch(ctx context.Context, match store.Predicate, order store.Sort) ([]recording.Recording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}

	res, err := s.db.Query(ctx, dsq.Query{Prefix: recordingsPrefix})
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer res.Close()

	recordings := make([]recording.Recording, 0)
	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return nil, fmt.Errorf("iterate recordings: %w", r.Error)
		}

		var rec recording.Recording
		if err := json.Unmarshal(r.Value, &rec); err != nil {
			return nil, fmt.Errorf("decode recording %s: %w", r.Key, err)
		}
		if match == nil || match(rec) {
			recordings = append(recordings, rec)
		}
	}

	order.Apply(recordings)
	return recordings, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
