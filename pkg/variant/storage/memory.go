package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/nemonet1337/zaiVariantStock/pkg/variant"
)

// ErrClosed is returned after Close has been called on a MemoryStorage
var ErrClosed = errors.New("ストレージは既に閉じられています")

type memoryState struct {
	variants  map[string]*variant.Variant
	movements []variant.StockMovement
	closed    bool
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		variants:  make(map[string]*variant.Variant, len(st.variants)),
		movements: make([]variant.StockMovement, len(st.movements)),
		closed:    st.closed,
	}
	for id, v := range st.variants {
		c.variants[id] = v.Clone()
	}
	copy(c.movements, st.movements)
	return c
}

// MemoryStorage is an in-process variant.Storage
// メモリ上のStorage実装（サンプル・テスト用）
//
// Values are copied on the way in and out, so callers never share state with the store.
// A transaction holds the store lock until it finishes and restores a snapshot on error.
type MemoryStorage struct {
	mu    *sync.Mutex
	state *memoryState
	inTx  bool
}

var _ variant.Storage = (*MemoryStorage)(nil)

// NewMemoryStorage creates an empty in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		mu:    &sync.Mutex{},
		state: &memoryState{variants: make(map[string]*variant.Variant)},
	}
}

func (s *MemoryStorage) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTransaction runs fn atomically against the store
func (s *MemoryStorage) WithinTransaction(ctx context.Context, fn func(tx variant.Storage) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.state.clone()
	tx := &MemoryStorage{mu: s.mu, state: s.state, inTx: true}
	if err := fn(tx); err != nil {
		*s.state = *snapshot
		return err
	}
	return nil
}

// CreateVariant stores a new variant
func (s *MemoryStorage) CreateVariant(ctx context.Context, v *variant.Variant) error {
	defer s.lock()()
	if s.state.closed {
		return ErrClosed
	}
	if _, ok := s.state.variants[v.ID]; ok {
		return variant.ErrDuplicateVariant
	}
	s.state.variants[v.ID] = v.Clone()
	return nil
}

// GetVariant returns a copy of the stored variant
func (s *MemoryStorage) GetVariant(ctx context.Context, variantID string) (*variant.Variant, error) {
	defer s.lock()()
	if s.state.closed {
		return nil, ErrClosed
	}
	v, ok := s.state.variants[variantID]
	if !ok {
		return nil, variant.ErrVariantNotFound
	}
	return v.Clone(), nil
}

// SaveVariant replaces a variant when the stored version is v.Version-1
func (s *MemoryStorage) SaveVariant(ctx context.Context, v *variant.Variant) error {
	defer s.lock()()
	if s.state.closed {
		return ErrClosed
	}
	current, ok := s.state.variants[v.ID]
	if !ok {
		return variant.ErrVariantNotFound
	}
	if current.Version != v.Version-1 {
		return variant.ErrVersionMismatch
	}
	s.state.variants[v.ID] = v.Clone()
	return nil
}

// ListVariantsByProduct returns the product's variants ordered by creation time
func (s *MemoryStorage) ListVariantsByProduct(ctx context.Context, productID string) ([]variant.Variant, error) {
	defer s.lock()()
	if s.state.closed {
		return nil, ErrClosed
	}
	out := make([]variant.Variant, 0)
	for _, v := range s.state.variants {
		if v.ProductID == productID {
			out = append(out, *v.Clone())
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

// AppendMovement appends a movement record
func (s *MemoryStorage) AppendMovement(ctx context.Context, m *variant.StockMovement) error {
	defer s.lock()()
	if s.state.closed {
		return ErrClosed
	}
	c := *m
	c.IdentifiersAdded = append([]string{}, m.IdentifiersAdded...)
	s.state.movements = append(s.state.movements, c)
	return nil
}

// GetMovementHistory returns up to limit movements of a variant, newest first
func (s *MemoryStorage) GetMovementHistory(ctx context.Context, variantID string, limit int) ([]variant.StockMovement, error) {
	defer s.lock()()
	if s.state.closed {
		return nil, ErrClosed
	}
	out := make([]variant.StockMovement, 0)
	for i := len(s.state.movements) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		m := s.state.movements[i]
		if m.VariantID != variantID {
			continue
		}
		m.IdentifiersAdded = append([]string{}, m.IdentifiersAdded...)
		out = append(out, m)
	}
	return out, nil
}

// IdentifierExists reports whether any variant holds the identifier
func (s *MemoryStorage) IdentifierExists(ctx context.Context, identifier string) (bool, error) {
	defer s.lock()()
	if s.state.closed {
		return false, ErrClosed
	}
	for _, v := range s.state.variants {
		for _, id := range v.ChildIdentifiers {
			if id != "" && id == identifier {
				return true, nil
			}
		}
	}
	return false, nil
}

// Ping reports whether the store is still open
func (s *MemoryStorage) Ping(ctx context.Context) error {
	defer s.lock()()
	if s.state.closed {
		return ErrClosed
	}
	return nil
}

// Close marks the store closed
func (s *MemoryStorage) Close() error {
	defer s.lock()()
	s.state.closed = true
	return nil
}
