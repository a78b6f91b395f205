package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Store is an append-mostly list of rows, persisted as a single JSON file.
// It is meant for small amounts of data that can be rewritten on every change.
type Store[Model any] struct {
	// FilePath is the path to the json file where the data should be stored.
	// When empty, the data is only kept in memory.
	FilePath string

	// MaxRows caps how many rows are kept. When exceeded, the oldest rows are dropped.
	MaxRows int

	data  []Model
	rwMux sync.RWMutex
}

type WHandle[Model any] struct {
	store *Store[Model]
}

type RHandle[Model any] struct {
	store *Store[Model]
}

func NewStore[Model any](filePath string) (*Store[Model], error) {
	store := &Store[Model]{FilePath: filePath}
	if err := store.Open(); err != nil {
		return nil, err
	}
	return store, nil
}

func (store *Store[Model]) Open() error {
	store.rwMux.Lock()
	defer store.rwMux.Unlock()

	store.data = nil
	if store.FilePath == "" {
		return nil
	}

	buf, err := os.ReadFile(store.FilePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}

	if err := json.Unmarshal(buf, &store.data); err != nil {
		return fmt.Errorf("failed to unmarshal datastore: %w", err)
	}

	return nil
}

func (store *Store[Model]) WriteHandle() WHandle[Model] {
	store.rwMux.Lock()
	return WHandle[Model]{store}
}

func (store *Store[Model]) ReadHandle() RHandle[Model] {
	store.rwMux.RLock()
	return RHandle[Model]{store}
}

func (w *WHandle[Model]) Close() {
	w.store.rwMux.Unlock()
}

func (r *RHandle[Model]) Close() {
	r.store.rwMux.RUnlock()
}

func (w *WHandle[Model]) Insert(row Model) error {
	w.store.data = append(w.store.data, row)

	if max := w.store.MaxRows; max > 0 && len(w.store.data) > max {
		w.store.data = append([]Model(nil), w.store.data[len(w.store.data)-max:]...)
	}

	return w.store.flush()
}

// Latest returns up to `limit` rows, newest first. A limit of 0 returns every row.
func (r *RHandle[Model]) Latest(limit int) []Model {
	count := len(r.store.data)
	if limit > 0 && limit < count {
		count = limit
	}

	rows := make([]Model, 0, count)
	for i := len(r.store.data) - 1; i >= 0 && len(rows) < count; i-- {
		rows = append(rows, r.store.data[i])
	}

	return rows
}

func (store *Store[Model]) Insert(row Model) error {
	w := store.WriteHandle()
	defer w.Close()

	return w.Insert(row)
}

func (store *Store[Model]) Latest(limit int) []Model {
	r := store.ReadHandle()
	defer r.Close()

	return r.Latest(limit)
}

func (store *Store[_]) flush() error {
	if store.FilePath == "" {
		return nil
	}

	buf, err := json.Marshal(store.data)
	if err != nil {
		return fmt.Errorf("failed to marshal datastore: %w", err)
	}

	if err := os.WriteFile(store.FilePath, buf, 0644); err != nil {
		return fmt.Errorf("failed to save datastore: %w", err)
	}

	return nil
}
