package dto

const (
	CommandSearch       = "search"
	CommandSendRequest  = "send_request"
	CommandAccept       = "accept"
	CommandDecline      = "decline"
	CommandRemoveFriend = "remove_friend"
	CommandGiveMedal    = "give_medal"
	CommandRefresh      = "refresh"
	CommandLeaderboard  = "leaderboard"
)

// Command is one client frame on the session socket.
type Command struct {
	Type  string `json:"type" validate:"required,oneof=search send_request accept decline remove_friend give_medal refresh leaderboard"`
	Query string `json:"query" validate:"max=100"`
	UID   string `json:"uid" validate:"max=128"`
	Medal string `json:"medal" validate:"omitempty,oneof=gold silver bronze"`
}

// NeedsUID reports whether the command targets another user.
func (c Command) NeedsUID() bool {
	switch c.Type {
	case CommandSendRequest, CommandAccept, CommandDecline, CommandRemoveFriend, CommandGiveMedal:
		return true
	}
	return false
}
