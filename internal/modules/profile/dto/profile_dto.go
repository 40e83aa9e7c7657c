package dto

import "anoa.com/drawsocial/internal/entity"

// Profile is the hydrated view of a user shown in friend lists, requests,
// search results and the leaderboard.
type Profile struct {
	UID         string             `json:"uid"`
	Handle      string             `json:"handle"`
	DisplayName string             `json:"display_name"`
	FirstName   string             `json:"first_name"`
	LastName    string             `json:"last_name"`
	FullName    string             `json:"full_name"`
	AvatarURL   *string            `json:"avatar_url,omitempty"`
	Bio         *string            `json:"bio,omitempty"`
	Medals      entity.MedalCounts `json:"medals"`
}
