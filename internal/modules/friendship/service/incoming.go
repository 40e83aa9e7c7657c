package service

import (
	"context"
	"log/slog"

	"anoa.com/drawsocial/internal/entity"
	friendshipRepo "anoa.com/drawsocial/internal/modules/friendship/repository"
	"anoa.com/drawsocial/pkg/apperror"
	"anoa.com/drawsocial/pkg/docstore"
)

// IncomingFeed streams decoded snapshots of a user's pending requests,
// newest first. Events is closed once the feed stops.
type IncomingFeed struct {
	events chan []entity.FriendRequest
	sub    *docstore.Subscription
}

func (f *IncomingFeed) Events() <-chan []entity.FriendRequest {
	return f.events
}

// Stop is idempotent.
func (f *IncomingFeed) Stop() {
	f.sub.Stop()
}

func (s *friendshipService) SubscribeIncoming(ctx context.Context, me string) (*IncomingFeed, error) {
	if me == "" {
		return nil, apperror.ErrNotAuthenticated
	}
	sub, err := s.repo.WatchIncoming(ctx, me)
	if err != nil {
		return nil, apperror.FromStore(err)
	}

	feed := &IncomingFeed{
		events: make(chan []entity.FriendRequest),
		sub:    sub,
	}
	go s.pump(feed, me)
	return feed, nil
}

func (s *friendshipService) pump(feed *IncomingFeed, me string) {
	defer close(feed.events)
	for {
		select {
		case snaps, ok := <-feed.sub.C():
			if !ok {
				return
			}
			requests, err := friendshipRepo.DecodeIncoming(snaps)
			if err != nil {
				s.logger.Warn("skipping malformed friend requests",
					slog.String("uid", me),
					slog.String("error", err.Error()),
				)
			}
			select {
			case feed.events <- requests:
			case <-feed.sub.Done():
				return
			}
		case <-feed.sub.Done():
			return
		}
	}
}

// SenderSet returns the sender uids present in snapshot.
func SenderSet(snapshot []entity.FriendRequest) map[string]struct{} {
	set := make(map[string]struct{}, len(snapshot))
	for _, req := range snapshot {
		set[req.FromUID] = struct{}{}
	}
	return set
}

// NewlyArrived returns the requests in snapshot whose sender is not in
// previous, in snapshot order, each sender at most once.
func NewlyArrived(previous map[string]struct{}, snapshot []entity.FriendRequest) []entity.FriendRequest {
	var arrived []entity.FriendRequest
	seen := make(map[string]struct{})
	for _, req := range snapshot {
		if _, ok := previous[req.FromUID]; ok {
			continue
		}
		if _, ok := seen[req.FromUID]; ok {
			continue
		}
		seen[req.FromUID] = struct{}{}
		arrived = append(arrived, req)
	}
	return arrived
}
