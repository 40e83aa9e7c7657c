package service

import (
	"context"

	friendshipService "anoa.com/drawsocial/internal/modules/friendship/service"
	leaderboardDto "anoa.com/drawsocial/internal/modules/leaderboard/dto"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	"anoa.com/drawsocial/pkg/apperror"
)

// FriendLister is the part of the friendship service the leaderboard reads.
type FriendLister interface {
	FriendIDs(ctx context.Context, me string) ([]string, error)
}

type LeaderboardService interface {
	FriendsLeaderboard(ctx context.Context, me string) ([]leaderboardDto.Entry, error)
}

type leaderboardService struct {
	friends  FriendLister
	profiles friendshipService.Hydrator
}

func NewLeaderboardService(friends FriendLister, profiles friendshipService.Hydrator) LeaderboardService {
	return &leaderboardService{friends: friends, profiles: profiles}
}

// FriendsLeaderboard ranks the caller among their friends.
func (s *leaderboardService) FriendsLeaderboard(ctx context.Context, me string) ([]leaderboardDto.Entry, error) {
	if me == "" {
		return nil, apperror.ErrNotAuthenticated
	}
	ids, err := s.friends.FriendIDs(ctx, me)
	if err != nil {
		return nil, err
	}

	profiles, err := s.profiles.HydrateAll(ctx, append([]string{me}, ids...))
	if err != nil {
		return nil, err
	}
	return Rank(EntriesFrom(profiles, me)), nil
}

// EntriesFrom converts hydrated profiles into unranked entries.
func EntriesFrom(profiles []profileDto.Profile, me string) []leaderboardDto.Entry {
	entries := make([]leaderboardDto.Entry, 0, len(profiles))
	for _, p := range profiles {
		entries = append(entries, leaderboardDto.Entry{
			UID:         p.UID,
			Handle:      p.Handle,
			DisplayName: p.DisplayName,
			FullName:    p.FullName,
			AvatarURL:   p.AvatarURL,
			Medals:      p.Medals,
			IsMe:        p.UID == me,
		})
	}
	return entries
}
