package testsupport

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// MemoryStore is an in-memory stand-in for a go-repository-bun repository.
// Criteria are ignored; List returns every row in insertion order. Err, when
// set, is returned by every call.
type MemoryStore[T any] struct {
	mu    sync.Mutex
	id    func(T) string
	rows  map[string]T
	order []string
	calls map[string]int

	Err error
}

// NewMemoryStore creates a store keyed by id.
func NewMemoryStore[T any](id func(T) string, rows ...T) *MemoryStore[T] {
	m := &MemoryStore[T]{
		id:    id,
		rows:  map[string]T{},
		calls: map[string]int{},
	}
	for _, r := range rows {
		m.put(r)
	}
	return m
}

// Calls returns how often method was called.
func (m *MemoryStore[T]) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

func (m *MemoryStore[T]) enter(method string) error {
	m.calls[method]++
	return m.Err
}

func (m *MemoryStore[T]) put(record T) {
	key := m.id(record)
	if _, ok := m.rows[key]; !ok {
		m.order = append(m.order, key)
	}
	m.rows[key] = record
}

func (m *MemoryStore[T]) all() []T {
	out := make([]T, 0, len(m.order))
	for _, key := range m.order {
		if r, ok := m.rows[key]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (m *MemoryStore[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var zero T
	if err := m.enter("Get"); err != nil {
		return zero, err
	}
	rows := m.all()
	if len(rows) == 0 {
		return zero, sql.ErrNoRows
	}
	return rows[0], nil
}

func (m *MemoryStore[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getByID("GetByID", id)
}

func (m *MemoryStore[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getByID("GetByIDTx", id)
}

func (m *MemoryStore[T]) getByID(method, id string) (T, error) {
	var zero T
	if err := m.enter(method); err != nil {
		return zero, err
	}
	r, ok := m.rows[id]
	if !ok {
		return zero, sql.ErrNoRows
	}
	return r, nil
}

func (m *MemoryStore[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list("List")
}

func (m *MemoryStore[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.list("ListTx")
}

func (m *MemoryStore[T]) list(method string) ([]T, int, error) {
	if err := m.enter(method); err != nil {
		return nil, 0, err
	}
	rows := m.all()
	return rows, len(rows), nil
}

func (m *MemoryStore[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Count"); err != nil {
		return 0, err
	}
	return len(m.rows), nil
}

func (m *MemoryStore[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create("Create", record)
}

func (m *MemoryStore[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.create("CreateTx", record)
}

func (m *MemoryStore[T]) create(method string, record T) (T, error) {
	var zero T
	if err := m.enter(method); err != nil {
		return zero, err
	}
	if _, ok := m.rows[m.id(record)]; ok {
		return zero, fmt.Errorf("duplicate id %s", m.id(record))
	}
	m.put(record)
	return record, nil
}

func (m *MemoryStore[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update("Update", record)
}

func (m *MemoryStore[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.update("UpdateTx", record)
}

func (m *MemoryStore[T]) update(method string, record T) (T, error) {
	var zero T
	if err := m.enter(method); err != nil {
		return zero, err
	}
	if _, ok := m.rows[m.id(record)]; !ok {
		return zero, sql.ErrNoRows
	}
	m.put(record)
	return record, nil
}

func (m *MemoryStore[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsert("Upsert", record)
}

func (m *MemoryStore[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsert("UpsertTx", record)
}

func (m *MemoryStore[T]) upsert(method string, record T) (T, error) {
	var zero T
	if err := m.enter(method); err != nil {
		return zero, err
	}
	m.put(record)
	return record, nil
}

func (m *MemoryStore[T]) Delete(ctx context.Context, record T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delete("Delete", record)
}

func (m *MemoryStore[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delete("DeleteTx", record)
}

func (m *MemoryStore[T]) delete(method string, record T) error {
	if err := m.enter(method); err != nil {
		return err
	}
	delete(m.rows, m.id(record))
	return nil
}
