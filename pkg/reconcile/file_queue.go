package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
	"time"
)

// FileQueue keeps entries in a single JSON file.
type FileQueue struct {
	path  string
	mu    sync.RWMutex
	data  map[string]Entry
	clock func() time.Time
}

func NewFileQueue(path string) (*FileQueue, error) {
	return NewFileQueueWithClock(path, time.Now)
}

func NewFileQueueWithClock(path string, clock func() time.Time) (*FileQueue, error) {
	q := &FileQueue{path: path, data: make(map[string]Entry), clock: clock}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *FileQueue) load() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	raw, err := os.ReadFile(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, &q.data)
}

func (q *FileQueue) save() error {
	raw, err := json.MarshalIndent(q.data, "", "  ")
	if err != nil {
		return err
	}
	tmp := q.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, q.path)
}

func (q *FileQueue) Enqueue(ctx context.Context, e Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.data[e.ID]; ok {
		return ErrExists
	}
	now := q.clock()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.State == "" {
		e.State = StatePending
	}
	q.data[e.ID] = e
	return q.save()
}

func (q *FileQueue) Get(ctx context.Context, id string) (Entry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	e, ok := q.data[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (q *FileQueue) AcquireLease(ctx context.Context, id, workerID string, duration time.Duration) (Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.data[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	if e.State != StatePending {
		return e, ErrNotPending
	}
	now := q.clock()
	if e.LeasedUntil.After(now) && e.LeasedBy != workerID {
		return e, ErrLeased
	}

	e.LeasedBy = workerID
	e.LeasedUntil = now.Add(duration)
	q.data[id] = e
	if err := q.save(); err != nil {
		return e, err
	}
	return e, nil
}

func (q *FileQueue) UpdateState(ctx context.Context, id string, state State, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.data[id]
	if !ok {
		return ErrNotFound
	}
	e.State = state
	e.Reason = reason
	e.UpdatedAt = q.clock()
	e.LeasedBy = ""
	e.LeasedUntil = time.Time{}
	q.data[id] = e
	return q.save()
}

func (q *FileQueue) RecordFailure(ctx context.Context, id, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.data[id]
	if !ok {
		return ErrNotFound
	}
	e.RetryCount++
	e.Reason = reason
	e.State = StatePending
	e.UpdatedAt = q.clock()
	e.LeasedBy = ""
	e.LeasedUntil = time.Time{}
	q.data[id] = e
	return q.save()
}

func (q *FileQueue) ListPending(ctx context.Context) ([]Entry, error) {
	return q.list(func(e Entry) bool { return e.State == StatePending })
}

func (q *FileQueue) ListAll(ctx context.Context) ([]Entry, error) {
	return q.list(func(Entry) bool { return true })
}

func (q *FileQueue) list(keep func(Entry) bool) ([]Entry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Entry, 0, len(q.data))
	for _, e := range q.data {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
