// Package storetest provides an in-memory store.Table for tests, with
// per-operation failure injection.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/agrimart/backoffice/internal/store"
)

// ErrUnavailable is a ready-made remote failure.
var ErrUnavailable = errors.New("storetest: remote unavailable")

// Table keeps rows in insertion order.
type Table[R store.Record[R]] struct {
	mu    sync.Mutex
	rows  []R
	seq   int
	fails map[string]error

	// Calls counts invocations per operation ("select", "insert", "update", "delete").
	Calls map[string]int
}

// NewTable returns a table seeded with rows.
func NewTable[R store.Record[R]](rows ...R) *Table[R] {
	t := &Table[R]{fails: map[string]error{}, Calls: map[string]int{}}
	t.rows = append(t.rows, rows...)
	return t
}

// Fail makes every later call of op return err. A nil err clears the failure.
func (t *Table[R]) Fail(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.fails, op)
		return
	}
	t.fails[op] = err
}

// FailAll makes every operation fail with err.
func (t *Table[R]) FailAll(err error) {
	for _, op := range []string{"select", "insert", "update", "delete"} {
		t.Fail(op, err)
	}
}

// Rows returns a snapshot of the stored rows.
func (t *Table[R]) Rows() []R {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]R, len(t.rows))
	copy(out, t.rows)
	return out
}

// Select implements store.Table. Filters compare with reflect.DeepEqual
// against the value returned by the column getter, so only "id" is supported.
func (t *Table[R]) Select(ctx context.Context, filter store.Filter) ([]R, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("select"); err != nil {
		return nil, err
	}
	out := make([]R, 0, len(t.rows))
	for _, row := range t.rows {
		if id, ok := filter["id"]; ok && !reflect.DeepEqual(id, row.RowID()) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// Insert implements store.Table, assigning an id when the row has none.
func (t *Table[R]) Insert(ctx context.Context, row R) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("insert"); err != nil {
		return "", err
	}
	if row.RowID() == "" {
		t.seq++
		row = row.WithID(fmt.Sprintf("remote-%d", t.seq))
	}
	for _, existing := range t.rows {
		if existing.RowID() == row.RowID() {
			return "", store.ErrDuplicate
		}
	}
	t.rows = append(t.rows, row)
	return row.RowID(), nil
}

// Update implements store.Table.
func (t *Table[R]) Update(ctx context.Context, id string, patch store.Patch) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("update"); err != nil {
		return err
	}
	for i, row := range t.rows {
		if row.RowID() != id {
			continue
		}
		updated, err := row.Apply(patch)
		if err != nil {
			return err
		}
		t.rows[i] = updated
		return nil
	}
	return store.ErrNotFound
}

// Delete implements store.Table.
func (t *Table[R]) Delete(ctx context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enter("delete"); err != nil {
		return err
	}
	for i, row := range t.rows {
		if row.RowID() == id {
			t.rows = append(t.rows[:i], t.rows[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (t *Table[R]) enter(op string) error {
	t.Calls[op]++
	return t.fails[op]
}
