package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

type memDoc struct {
	data    []byte
	version uint64
}

// MemoryStore is an in-process Store with optimistic transactions.
type MemoryStore struct {
	mu          sync.Mutex
	docs        map[string]memDoc
	collections map[string]map[string]struct{}
	subs        map[string]map[*Subscription]struct{}
	version     uint64

	now         func() time.Time
	maxAttempts int

	// beforeCommit runs between a transaction body and its commit; tests use
	// it to inject concurrent writes.
	beforeCommit func()
}

type MemoryOption func(*MemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

func WithMaxAttempts(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		docs:        make(map[string]memDoc),
		collections: make(map[string]map[string]struct{}),
		subs:        make(map[string]map[*Subscription]struct{}),
		now:         time.Now,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[ref.Path()]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, ref.Path())
	}
	return Snapshot{Ref: ref, Data: clone(doc.data)}, nil
}

func (s *MemoryStore) Set(ctx context.Context, ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked([]writeOp{{kind: opSet, ref: ref, data: data}})
	return nil
}

func (s *MemoryStore) Merge(ctx context.Context, ref Ref, v any) error {
	patch, err := encode(v)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := mergeJSON(s.docs[ref.Path()].data, patch)
	if err != nil {
		return err
	}
	s.applyLocked([]writeOp{{kind: opSet, ref: ref, data: merged}})
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref Ref) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked([]writeOp{{kind: opDelete, ref: ref}})
	return nil
}

func (s *MemoryStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(collection), nil
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &memTx{store: s, reads: make(map[string]uint64)}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit()
		}

		if s.commitTx(tx) {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrTxConflict, s.maxAttempts)
}

func (s *MemoryStore) commitTx(tx *memTx) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, version := range tx.reads {
		if s.docs[path].version != version {
			return false
		}
	}
	s.applyLocked(tx.ops)
	return true
}

func (s *MemoryStore) Batch() Batch {
	return &memBatch{store: s}
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var sub *Subscription
	sub = newSubscription(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if subs, ok := s.subs[collection]; ok {
			if _, active := subs[sub]; active {
				delete(subs, sub)
				close(sub.c)
			}
		}
	})

	s.mu.Lock()
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[*Subscription]struct{})
	}
	s.subs[collection][sub] = struct{}{}
	sub.offer(s.listLocked(collection))
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Stop()
		case <-sub.Done():
		}
	}()

	return sub, nil
}

func (s *MemoryStore) ServerTime(ctx context.Context) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	return s.now().UTC(), nil
}

// applyLocked writes ops and notifies subscribers of the touched collections.
func (s *MemoryStore) applyLocked(ops []writeOp) {
	for _, op := range ops {
		path := op.ref.Path()
		switch op.kind {
		case opSet:
			s.version++
			s.docs[path] = memDoc{data: clone(op.data), version: s.version}
			ids := s.collections[op.ref.Collection]
			if ids == nil {
				ids = make(map[string]struct{})
				s.collections[op.ref.Collection] = ids
			}
			ids[op.ref.ID] = struct{}{}
		case opDelete:
			if _, ok := s.docs[path]; !ok {
				continue
			}
			s.version++
			delete(s.docs, path)
			delete(s.collections[op.ref.Collection], op.ref.ID)
		}
	}

	for _, collection := range collectionsOf(ops) {
		subs := s.subs[collection]
		if len(subs) == 0 {
			continue
		}
		snap := s.listLocked(collection)
		for sub := range subs {
			sub.offer(snap)
		}
	}
}

func (s *MemoryStore) listLocked(collection string) []Snapshot {
	ids := make([]string, 0, len(s.collections[collection]))
	for id := range s.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		ref := Doc(collection, id)
		out = append(out, Snapshot{Ref: ref, Data: clone(s.docs[ref.Path()].data)})
	}
	return out
}

type memTx struct {
	store *MemoryStore
	reads map[string]uint64
	ops   []writeOp
}

func (t *memTx) Get(ctx context.Context, ref Ref) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if len(t.ops) > 0 {
		return Snapshot{}, errors.New("docstore: transaction reads must precede writes")
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	path := ref.Path()
	doc, ok := t.store.docs[path]
	t.reads[path] = doc.version
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return Snapshot{Ref: ref, Data: clone(doc.data)}, nil
}

func (t *memTx) Set(ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	t.ops = append(t.ops, writeOp{kind: opSet, ref: ref, data: data})
	return nil
}

func (t *memTx) Delete(ref Ref) {
	t.ops = append(t.ops, writeOp{kind: opDelete, ref: ref})
}

type memBatch struct {
	store *MemoryStore
	ops   []writeOp
	err   error
}

func (b *memBatch) Set(ref Ref, v any) error {
	data, err := encode(v)
	if err != nil {
		b.err = err
		return err
	}
	b.ops = append(b.ops, writeOp{kind: opSet, ref: ref, data: data})
	return nil
}

func (b *memBatch) Delete(ref Ref) {
	b.ops = append(b.ops, writeOp{kind: opDelete, ref: ref})
}

func (b *memBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.applyLocked(b.ops)
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
