package entity

import "time"

const FriendRequestPending = "pending"

// FriendRequest lives at users/<recipient>/friendRequests/<sender>.
type FriendRequest struct {
	FromUID     string    `json:"fromUid" validate:"required"`
	FromHandle  string    `json:"fromHandle"`
	FromDisplay string    `json:"fromDisplay"`
	Status      string    `json:"status" validate:"required,oneof=pending"`
	CreatedAt   time.Time `json:"createdAt" validate:"required"`
}

// FriendshipEdge lives at users/<owner>/friends/<friend>. A friendship is two
// edges, one per direction.
type FriendshipEdge struct {
	FriendUID string    `json:"friendUid" validate:"required"`
	Since     time.Time `json:"since" validate:"required"`
}

// RelationshipState is the pair state as seen from one side.
type RelationshipState string

const (
	RelationshipNone            RelationshipState = "none"
	RelationshipPendingOutgoing RelationshipState = "pending_outgoing"
	RelationshipPendingIncoming RelationshipState = "pending_incoming"
	RelationshipPendingBoth     RelationshipState = "pending_both"
	RelationshipFriends         RelationshipState = "friends"
)
