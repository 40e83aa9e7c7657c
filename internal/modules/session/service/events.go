package service

import (
	"anoa.com/drawsocial/internal/entity"
	awardService "anoa.com/drawsocial/internal/modules/award/service"
	searchDto "anoa.com/drawsocial/internal/modules/search/dto"
)

const (
	EventUsage         = "usage"
	EventFriends       = "friends"
	EventIncoming      = "incoming_requests"
	EventPending       = "pending_outgoing"
	EventSearchResults = "search_results"
	EventLeaderboard   = "leaderboard"
	EventMedal         = "medal_result"
	EventError         = "error"
)

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ErrorData struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

type SearchResults struct {
	Query string              `json:"query"`
	Hits  []searchDto.UserHit `json:"hits"`
}

// IncomingData carries the whole snapshot plus the requests that were new
// since the previous one.
type IncomingData struct {
	Requests []entity.FriendRequest `json:"requests"`
	Arrived  []entity.FriendRequest `json:"arrived,omitempty"`
}

type MedalResult struct {
	Recipient string               `json:"recipient_uid"`
	Medal     entity.MedalType     `json:"medal"`
	Outcome   awardService.Outcome `json:"outcome"`
}
