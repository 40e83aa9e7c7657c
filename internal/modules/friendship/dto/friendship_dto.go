package dto

import (
	"time"

	"anoa.com/drawsocial/internal/entity"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
)

type SendRequestRequest struct {
	ToUID string `json:"to_uid" binding:"required,max=128"`
}

// IncomingRequest is a pending request with the sender's hydrated profile.
// Profile is nil when the sender no longer has one.
type IncomingRequest struct {
	FromUID     string              `json:"from_uid"`
	FromHandle  string              `json:"from_handle"`
	FromDisplay string              `json:"from_display"`
	CreatedAt   time.Time           `json:"created_at"`
	Profile     *profileDto.Profile `json:"profile,omitempty"`
}

type PendingResponse struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Pending bool   `json:"pending"`
}

type StateResponse struct {
	UID   string                   `json:"uid"`
	State entity.RelationshipState `json:"state"`
}

type FriendsResponse struct {
	Friends []profileDto.Profile `json:"friends"`
}

type IncomingResponse struct {
	Requests []IncomingRequest `json:"requests"`
}
