package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"anoa.com/drawsocial/internal/entity"
	"anoa.com/drawsocial/internal/metrics"
	friendshipDto "anoa.com/drawsocial/internal/modules/friendship/dto"
	friendshipRepo "anoa.com/drawsocial/internal/modules/friendship/repository"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	"anoa.com/drawsocial/pkg/apperror"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/sync/errgroup"
)

// Notifier is the fire-and-forget sink told about accepted requests.
type Notifier interface {
	Notify(ctx context.Context, userID, actorID, kind, title, body string)
}

// Hydrator turns uids into display profiles.
type Hydrator interface {
	HydrateAll(ctx context.Context, uids []string) ([]profileDto.Profile, error)
}

type FriendshipService interface {
	SendRequest(ctx context.Context, from, to, fromHandle, fromDisplay string) error
	Accept(ctx context.Context, me, other string) error
	Decline(ctx context.Context, me, other string) error
	RemoveFriend(ctx context.Context, me, other string) error
	// HasPending reports whether from has an open request to to.
	HasPending(ctx context.Context, from, to string) (bool, error)
	FriendIDs(ctx context.Context, me string) ([]string, error)
	Friends(ctx context.Context, me string) ([]profileDto.Profile, error)
	IncomingRequests(ctx context.Context, me string) ([]friendshipDto.IncomingRequest, error)
	State(ctx context.Context, me, other string) (entity.RelationshipState, error)
	SubscribeIncoming(ctx context.Context, me string) (*IncomingFeed, error)
}

type friendshipService struct {
	repo     friendshipRepo.FriendshipRepository
	profiles Hydrator
	notifier Notifier
	policy   *bluemonday.Policy
	metrics  metrics.Recorder
	logger   *slog.Logger
}

func NewFriendshipService(repo friendshipRepo.FriendshipRepository, profiles Hydrator, notifier Notifier, recorder metrics.Recorder, logger *slog.Logger) FriendshipService {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &friendshipService{
		repo:     repo,
		profiles: profiles,
		notifier: notifier,
		policy:   bluemonday.StrictPolicy(),
		metrics:  recorder,
		logger:   logger,
	}
}

func checkPair(me, other string) error {
	if me == "" {
		return apperror.ErrNotAuthenticated
	}
	if strings.TrimSpace(other) == "" {
		return fmt.Errorf("%w: uid is required", apperror.ErrInvalidInput)
	}
	if me == other {
		return fmt.Errorf("%w: cannot befriend yourself", apperror.ErrBadRequest)
	}
	return nil
}

func (s *friendshipService) SendRequest(ctx context.Context, from, to, fromHandle, fromDisplay string) (err error) {
	defer func() { s.metrics.RecordFriendMutation("send", err) }()

	if err := checkPair(from, to); err != nil {
		return err
	}

	friends, err := s.repo.EdgeExists(ctx, from, to)
	if err != nil {
		return apperror.FromStore(err)
	}
	if friends {
		return fmt.Errorf("%w: already friends", apperror.ErrBadRequest)
	}

	now, err := s.repo.ServerTime(ctx)
	if err != nil {
		return apperror.FromStore(err)
	}

	req := entity.FriendRequest{
		FromUID:     from,
		FromHandle:  strings.TrimSpace(s.policy.Sanitize(fromHandle)),
		FromDisplay: strings.TrimSpace(s.policy.Sanitize(fromDisplay)),
		Status:      entity.FriendRequestPending,
		CreatedAt:   now,
	}
	if err := s.repo.UpsertRequest(ctx, to, req); err != nil {
		s.logger.Error("friend request failed",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		return apperror.FromStore(err)
	}

	s.logger.Info("friend request sent", slog.String("from", from), slog.String("to", to))
	return nil
}

func (s *friendshipService) Accept(ctx context.Context, me, other string) (err error) {
	defer func() { s.metrics.RecordFriendMutation("accept", err) }()

	if err := checkPair(me, other); err != nil {
		return err
	}

	pending, err := s.repo.RequestExists(ctx, me, other)
	if err != nil {
		return apperror.FromStore(err)
	}
	if !pending {
		return fmt.Errorf("friend request from %s: %w", other, apperror.ErrNotFound)
	}

	now, err := s.repo.ServerTime(ctx)
	if err != nil {
		return apperror.FromStore(err)
	}
	if err := s.repo.Accept(ctx, me, other, now); err != nil {
		s.logger.Error("accept failed",
			slog.String("me", me),
			slog.String("other", other),
			slog.String("error", err.Error()),
		)
		return apperror.FromStore(err)
	}

	s.logger.Info("friend request accepted", slog.String("me", me), slog.String("other", other))
	if s.notifier != nil {
		s.notifier.Notify(ctx, other, me, entity.NotificationFriendAccepted, "Friend request accepted", "You have a new friend")
	}
	return nil
}

func (s *friendshipService) Decline(ctx context.Context, me, other string) (err error) {
	defer func() { s.metrics.RecordFriendMutation("decline", err) }()

	if err := checkPair(me, other); err != nil {
		return err
	}
	if err := s.repo.DeleteRequest(ctx, me, other); err != nil {
		return apperror.FromStore(err)
	}
	return nil
}

func (s *friendshipService) RemoveFriend(ctx context.Context, me, other string) (err error) {
	defer func() { s.metrics.RecordFriendMutation("remove", err) }()

	if err := checkPair(me, other); err != nil {
		return err
	}
	if err := s.repo.Remove(ctx, me, other); err != nil {
		s.logger.Error("remove friend failed",
			slog.String("me", me),
			slog.String("other", other),
			slog.String("error", err.Error()),
		)
		return apperror.FromStore(err)
	}
	return nil
}

func (s *friendshipService) HasPending(ctx context.Context, from, to string) (bool, error) {
	if from == "" || to == "" || from == to {
		return false, nil
	}
	ok, err := s.repo.RequestExists(ctx, to, from)
	if err != nil {
		return false, apperror.FromStore(err)
	}
	return ok, nil
}

func (s *friendshipService) FriendIDs(ctx context.Context, me string) ([]string, error) {
	if me == "" {
		return nil, apperror.ErrNotAuthenticated
	}
	edges, err := s.repo.ListFriends(ctx, me)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	ids := make([]string, 0, len(edges))
	for _, edge := range edges {
		ids = append(ids, edge.FriendUID)
	}
	return ids, nil
}

func (s *friendshipService) Friends(ctx context.Context, me string) ([]profileDto.Profile, error) {
	ids, err := s.FriendIDs(ctx, me)
	if err != nil {
		return nil, err
	}
	return s.profiles.HydrateAll(ctx, ids)
}

func (s *friendshipService) IncomingRequests(ctx context.Context, me string) ([]friendshipDto.IncomingRequest, error) {
	if me == "" {
		return nil, apperror.ErrNotAuthenticated
	}
	requests, err := s.repo.ListIncoming(ctx, me)
	if err != nil {
		return nil, apperror.FromStore(err)
	}

	uids := make([]string, 0, len(requests))
	for _, req := range requests {
		uids = append(uids, req.FromUID)
	}
	profiles, err := s.profiles.HydrateAll(ctx, uids)
	if err != nil {
		return nil, err
	}
	byUID := make(map[string]*profileDto.Profile, len(profiles))
	for i := range profiles {
		byUID[profiles[i].UID] = &profiles[i]
	}

	out := make([]friendshipDto.IncomingRequest, 0, len(requests))
	for _, req := range requests {
		out = append(out, friendshipDto.IncomingRequest{
			FromUID:     req.FromUID,
			FromHandle:  req.FromHandle,
			FromDisplay: req.FromDisplay,
			CreatedAt:   req.CreatedAt,
			Profile:     byUID[req.FromUID],
		})
	}
	return out, nil
}

func (s *friendshipService) State(ctx context.Context, me, other string) (entity.RelationshipState, error) {
	if err := checkPair(me, other); err != nil {
		return "", err
	}

	var friends, outgoing, incoming bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		friends, err = s.repo.EdgeExists(gctx, me, other)
		return err
	})
	g.Go(func() (err error) {
		outgoing, err = s.repo.RequestExists(gctx, other, me)
		return err
	})
	g.Go(func() (err error) {
		incoming, err = s.repo.RequestExists(gctx, me, other)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", apperror.FromStore(err)
	}

	switch {
	case friends:
		return entity.RelationshipFriends, nil
	case outgoing && incoming:
		return entity.RelationshipPendingBoth, nil
	case outgoing:
		return entity.RelationshipPendingOutgoing, nil
	case incoming:
		return entity.RelationshipPendingIncoming, nil
	}
	return entity.RelationshipNone, nil
}
