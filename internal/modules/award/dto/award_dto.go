package dto

import "anoa.com/drawsocial/internal/entity"

type GiveMedalRequest struct {
	RecipientUID string `json:"recipient_uid" binding:"required,max=128"`
	Medal        string `json:"medal" binding:"required,oneof=gold silver bronze"`
}

type GiveMedalResponse struct {
	Outcome      string `json:"outcome"`
	Medal        string `json:"medal"`
	RecipientUID string `json:"recipient_uid"`
}

// UsageResponse tells the client which medal buttons are spent today.
type UsageResponse struct {
	Day    string `json:"day"`
	Gold   bool   `json:"gold"`
	Silver bool   `json:"silver"`
	Bronze bool   `json:"bronze"`
}

func NewUsageResponse(u entity.AwardUsage) UsageResponse {
	return UsageResponse{
		Day:    u.Day,
		Gold:   u.GoldUsed,
		Silver: u.SilverUsed,
		Bronze: u.BronzeUsed,
	}
}

type CountsResponse struct {
	UID    string             `json:"uid"`
	Counts entity.MedalCounts `json:"counts"`
	// GivenByMe is the caller's active medal on this user, if any.
	GivenByMe *string `json:"given_by_me,omitempty"`
}
