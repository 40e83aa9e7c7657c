// Package docstore is a small transactional document store: keyed JSON
// documents grouped in collections, optimistic transactions, atomic batches
// and full-snapshot change subscriptions.
package docstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	ErrNotFound   = errors.New("docstore: document not found")
	ErrTxConflict = errors.New("docstore: transaction conflict")
	ErrMalformed  = errors.New("docstore: malformed document")
)

// DefaultMaxAttempts bounds how many times a conflicting transaction is re-run.
const DefaultMaxAttempts = 5

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

func Doc(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// Collection joins path segments, e.g. Collection("users", uid, "friends").
func Collection(segments ...string) string {
	return strings.Join(segments, "/")
}

func (r Ref) Path() string {
	return r.Collection + "/" + r.ID
}

// Snapshot is a document as read from the store.
type Snapshot struct {
	Ref  Ref
	Data []byte
}

// DataTo decodes the document into dst and validates it.
func (s Snapshot) DataTo(dst any) error {
	return decode(s.Ref, s.Data, dst)
}

// Tx is the view a transaction function gets. Reads see committed data and
// register the document for conflict detection; writes are buffered until
// the function returns nil.
type Tx interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ref Ref, v any) error
	Delete(ref Ref)
}

// Batch is an unconditional multi-document write committed atomically.
type Batch interface {
	Set(ref Ref, v any) error
	Delete(ref Ref)
	Commit(ctx context.Context) error
}

type Store interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ctx context.Context, ref Ref, v any) error
	// Merge overlays the top-level fields of v onto the stored document,
	// creating it when missing.
	Merge(ctx context.Context, ref Ref, v any) error
	Delete(ctx context.Context, ref Ref) error
	List(ctx context.Context, collection string) ([]Snapshot, error)
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Batch() Batch
	Subscribe(ctx context.Context, collection string) (*Subscription, error)
	ServerTime(ctx context.Context) (time.Time, error)
}

// Subscription delivers the full contents of a collection on every change.
// Only the latest undelivered snapshot is kept.
type Subscription struct {
	c    chan []Snapshot
	done chan struct{}
	once sync.Once
	stop func()
}

func newSubscription(stop func()) *Subscription {
	return &Subscription{
		c:    make(chan []Snapshot, 1),
		done: make(chan struct{}),
		stop: stop,
	}
}

// C is closed after Stop.
func (s *Subscription) C() <-chan []Snapshot {
	return s.c
}

func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Stop ends the subscription. Safe to call more than once.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		close(s.done)
		if s.stop != nil {
			s.stop()
		}
	})
}

// offer replaces any pending snapshot with snap. Callers serialize offers
// and never offer after close.
func (s *Subscription) offer(snap []Snapshot) {
	select {
	case s.c <- snap:
		return
	default:
	}
	select {
	case <-s.c:
	default:
	}
	select {
	case s.c <- snap:
	default:
	}
}

type opKind int

const (
	opSet opKind = iota
	opDelete
)

type writeOp struct {
	kind opKind
	ref  Ref
	data []byte
}

// collectionsOf returns the distinct collections touched by ops.
func collectionsOf(ops []writeOp) []string {
	seen := make(map[string]struct{}, len(ops))
	var out []string
	for _, op := range ops {
		if _, ok := seen[op.ref.Collection]; ok {
			continue
		}
		seen[op.ref.Collection] = struct{}{}
		out = append(out, op.ref.Collection)
	}
	return out
}
