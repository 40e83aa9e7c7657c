package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"anoa.com/drawsocial/internal/entity"
	"anoa.com/drawsocial/pkg/docstore"
)

type FriendshipRepository interface {
	// UpsertRequest merges req onto users/<to>/friendRequests/<req.FromUID>.
	UpsertRequest(ctx context.Context, to string, req entity.FriendRequest) error
	DeleteRequest(ctx context.Context, recipient, sender string) error
	RequestExists(ctx context.Context, recipient, sender string) (bool, error)
	// ListIncoming returns requests newest first.
	ListIncoming(ctx context.Context, recipient string) ([]entity.FriendRequest, error)
	// Accept writes both edges and deletes the request from other to me in one batch.
	Accept(ctx context.Context, me, other string, since time.Time) error
	// Remove deletes both edges in one batch.
	Remove(ctx context.Context, me, other string) error
	ListFriends(ctx context.Context, owner string) ([]entity.FriendshipEdge, error)
	EdgeExists(ctx context.Context, owner, friend string) (bool, error)
	WatchIncoming(ctx context.Context, recipient string) (*docstore.Subscription, error)
	ServerTime(ctx context.Context) (time.Time, error)
}

type friendshipRepository struct {
	store docstore.Store
}

func NewFriendshipRepository(store docstore.Store) FriendshipRepository {
	return &friendshipRepository{store: store}
}

func requestsCollection(recipient string) string {
	return docstore.Collection("users", recipient, "friendRequests")
}

func requestRef(recipient, sender string) docstore.Ref {
	return docstore.Doc(requestsCollection(recipient), sender)
}

func friendsCollection(owner string) string {
	return docstore.Collection("users", owner, "friends")
}

func edgeRef(owner, friend string) docstore.Ref {
	return docstore.Doc(friendsCollection(owner), friend)
}

func (r *friendshipRepository) UpsertRequest(ctx context.Context, to string, req entity.FriendRequest) error {
	return r.store.Merge(ctx, requestRef(to, req.FromUID), req)
}

func (r *friendshipRepository) DeleteRequest(ctx context.Context, recipient, sender string) error {
	return r.store.Delete(ctx, requestRef(recipient, sender))
}

func (r *friendshipRepository) RequestExists(ctx context.Context, recipient, sender string) (bool, error) {
	return r.exists(ctx, requestRef(recipient, sender))
}

func (r *friendshipRepository) ListIncoming(ctx context.Context, recipient string) ([]entity.FriendRequest, error) {
	docs, err := r.store.List(ctx, requestsCollection(recipient))
	if err != nil {
		return nil, err
	}
	requests, err := DecodeIncoming(docs)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *friendshipRepository) Accept(ctx context.Context, me, other string, since time.Time) error {
	b := r.store.Batch()
	if err := b.Set(edgeRef(me, other), entity.FriendshipEdge{FriendUID: other, Since: since}); err != nil {
		return err
	}
	if err := b.Set(edgeRef(other, me), entity.FriendshipEdge{FriendUID: me, Since: since}); err != nil {
		return err
	}
	b.Delete(requestRef(me, other))
	return b.Commit(ctx)
}

func (r *friendshipRepository) Remove(ctx context.Context, me, other string) error {
	b := r.store.Batch()
	b.Delete(edgeRef(me, other))
	b.Delete(edgeRef(other, me))
	return b.Commit(ctx)
}

func (r *friendshipRepository) ListFriends(ctx context.Context, owner string) ([]entity.FriendshipEdge, error) {
	docs, err := r.store.List(ctx, friendsCollection(owner))
	if err != nil {
		return nil, err
	}
	edges := make([]entity.FriendshipEdge, 0, len(docs))
	for _, doc := range docs {
		var edge entity.FriendshipEdge
		if err := doc.DataTo(&edge); err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

func (r *friendshipRepository) EdgeExists(ctx context.Context, owner, friend string) (bool, error) {
	return r.exists(ctx, edgeRef(owner, friend))
}

func (r *friendshipRepository) WatchIncoming(ctx context.Context, recipient string) (*docstore.Subscription, error) {
	return r.store.Subscribe(ctx, requestsCollection(recipient))
}

func (r *friendshipRepository) ServerTime(ctx context.Context) (time.Time, error) {
	return r.store.ServerTime(ctx)
}

func (r *friendshipRepository) exists(ctx context.Context, ref docstore.Ref) (bool, error) {
	_, err := r.store.Get(ctx, ref)
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DecodeIncoming decodes a friendRequests snapshot, newest first with ties
// broken by sender uid. Malformed documents are left out and reported in the
// returned error alongside the requests that did decode.
func DecodeIncoming(docs []docstore.Snapshot) ([]entity.FriendRequest, error) {
	requests := make([]entity.FriendRequest, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		var req entity.FriendRequest
		if err := doc.DataTo(&req); err != nil {
			errs = append(errs, err)
			continue
		}
		if req.FromUID != doc.Ref.ID {
			errs = append(errs, fmt.Errorf("%w: %s: sender %q does not match document id", docstore.ErrMalformed, doc.Ref.Path(), req.FromUID))
			continue
		}
		requests = append(requests, req)
	}

	sort.SliceStable(requests, func(i, j int) bool {
		if !requests[i].CreatedAt.Equal(requests[j].CreatedAt) {
			return requests[i].CreatedAt.After(requests[j].CreatedAt)
		}
		return requests[i].FromUID < requests[j].FromUID
	})

	return requests, errors.Join(errs...)
}
