package dto

import (
	"anoa.com/drawsocial/internal/entity"
	commonDto "anoa.com/drawsocial/pkg/dto"
)

// Entry is one ranked user. Position is 1-based.
type Entry struct {
	UID         string               `json:"uid"`
	Handle      string               `json:"handle"`
	DisplayName string               `json:"display_name"`
	FullName    string               `json:"full_name"`
	AvatarURL   *string              `json:"avatar_url,omitempty"`
	Medals      entity.MedalCounts   `json:"medals"`
	Points      int                  `json:"points"`
	Position    int                  `json:"position"`
	IsMe        bool                 `json:"is_me"`
	Tier        commonDto.TierStatus `json:"tier"`
}

type LeaderboardResponse struct {
	Data []Entry `json:"data"`
}
