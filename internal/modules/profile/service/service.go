package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"anoa.com/drawsocial/internal/entity"
	"anoa.com/drawsocial/internal/metrics"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	profileRepo "anoa.com/drawsocial/internal/modules/profile/repository"
	"anoa.com/drawsocial/pkg/apperror"
	"anoa.com/drawsocial/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// MedalCounter is the part of the award service profiles need.
type MedalCounter interface {
	AggregateCounts(ctx context.Context, recipient string) (entity.MedalCounts, error)
}

type ProfileService interface {
	FetchProfile(ctx context.Context, uid string) (*profileDto.Profile, error)
	HydrateAll(ctx context.Context, uids []string) ([]profileDto.Profile, error)
}

type profileService struct {
	repo        profileRepo.UserRepository
	counter     MedalCounter
	avatars     storage.AvatarResolver
	concurrency int
	metrics     metrics.Recorder
	logger      *slog.Logger
}

func NewProfileService(repo profileRepo.UserRepository, counter MedalCounter, avatars storage.AvatarResolver, concurrency int, recorder metrics.Recorder, logger *slog.Logger) ProfileService {
	if concurrency <= 0 {
		concurrency = 8
	}
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &profileService{
		repo:        repo,
		counter:     counter,
		avatars:     avatars,
		concurrency: concurrency,
		metrics:     recorder,
		logger:      logger,
	}
}

func (s *profileService) FetchProfile(ctx context.Context, uid string) (*profileDto.Profile, error) {
	user, err := s.repo.FindByID(ctx, uid)
	if err != nil {
		return nil, err
	}

	profile := profileDto.Profile{
		UID:    user.ID,
		Handle: user.Handle,
	}
	if user.Profile != nil {
		profile.DisplayName = user.Profile.DisplayName
		profile.FirstName = user.Profile.FirstName
		profile.LastName = user.Profile.LastName
		profile.FullName = user.Profile.FullName()
		profile.Bio = user.Profile.Bio
	}
	if profile.DisplayName == "" {
		profile.DisplayName = user.Handle
	}
	if profile.FullName == "" {
		profile.FullName = profile.DisplayName
	}

	if s.avatars != nil && user.AvatarPublicID != nil && *user.AvatarPublicID != "" {
		url, err := s.avatars.AvatarURL(*user.AvatarPublicID)
		if err != nil {
			// A broken avatar should not hide the profile.
			s.logger.Warn("avatar url failed",
				slog.String("uid", uid),
				slog.String("error", err.Error()),
			)
		} else {
			profile.AvatarURL = &url
		}
	}

	if s.counter != nil {
		counts, err := s.counter.AggregateCounts(ctx, uid)
		if err != nil {
			return nil, err
		}
		profile.Medals = counts
	}

	return &profile, nil
}

// HydrateAll looks up each distinct uid once, with at most concurrency lookups
// in flight. Results follow the input order. Unknown uids are skipped.
func (s *profileService) HydrateAll(ctx context.Context, uids []string) ([]profileDto.Profile, error) {
	start := time.Now()
	defer func() { s.metrics.RecordHydration(time.Since(start)) }()

	distinct := make([]string, 0, len(uids))
	seen := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		if uid == "" {
			continue
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		distinct = append(distinct, uid)
	}

	results := make([]*profileDto.Profile, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, uid := range distinct {
		g.Go(func() error {
			profile, err := s.FetchProfile(gctx, uid)
			if errors.Is(err, apperror.ErrNotFound) {
				s.logger.Warn("profile missing during hydration", slog.String("uid", uid))
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = profile
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	profiles := make([]profileDto.Profile, 0, len(results))
	for _, p := range results {
		if p != nil {
			profiles = append(profiles, *p)
		}
	}
	return profiles, nil
}
