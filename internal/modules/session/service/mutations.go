package service

import (
	"context"

	"anoa.com/drawsocial/internal/entity"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	"anoa.com/drawsocial/pkg/apperror"
)

// Mutations apply their optimistic change on the loop, call the service from
// the caller's goroutine and then either refetch or roll back.

func (c *Coordinator) SendRequest(ctx context.Context, to string) error {
	var had bool
	var handle, display string
	if err := c.do(func() {
		_, had = c.pendingOutgoing[to]
		c.pendingOutgoing[to] = struct{}{}
		c.sending[to]++
		handle, display = c.handle, c.display
		c.publishPending()
	}); err != nil {
		return err
	}

	err := c.deps.Friendships.SendRequest(ctx, c.me, to, handle, display)
	if err != nil {
		c.do(func() {
			c.doneSending(to)
			if !had {
				delete(c.pendingOutgoing, to)
			}
			c.publishPending()
			c.publishError("send_request", err)
		})
		return err
	}

	c.do(func() { c.doneSending(to) })
	return c.RefreshPending(ctx, to)
}

// RefreshPending replaces the local mark for to with the store's answer.
func (c *Coordinator) RefreshPending(ctx context.Context, to string) error {
	pending, err := c.deps.Friendships.HasPending(ctx, c.me, to)
	if err != nil {
		c.do(func() { c.publishError("refresh_pending", err) })
		return err
	}
	return c.do(func() {
		if c.sending[to] > 0 {
			return
		}
		_, had := c.pendingOutgoing[to]
		if pending {
			c.pendingOutgoing[to] = struct{}{}
		} else {
			delete(c.pendingOutgoing, to)
		}
		if had != pending {
			c.publishPending()
		}
	})
}

func (c *Coordinator) doneSending(to string) {
	if c.sending[to] <= 1 {
		delete(c.sending, to)
		return
	}
	c.sending[to]--
}

func (c *Coordinator) Accept(ctx context.Context, from string) error {
	var removed *entity.FriendRequest
	var wasFriend bool
	if err := c.do(func() {
		removed = c.dropIncoming(from)
		_, wasFriend = c.friendIDs[from]
		c.friendIDs[from] = struct{}{}
		c.publish(EventIncoming, IncomingData{Requests: c.incoming})
	}); err != nil {
		return err
	}

	if err := c.deps.Friendships.Accept(ctx, c.me, from); err != nil {
		c.do(func() {
			c.restoreIncoming(removed)
			if !wasFriend {
				delete(c.friendIDs, from)
			}
			c.publish(EventIncoming, IncomingData{Requests: c.incoming})
			c.publishError("accept", err)
		})
		return err
	}
	return c.RefreshFriends(ctx)
}

func (c *Coordinator) Decline(ctx context.Context, from string) error {
	var removed *entity.FriendRequest
	if err := c.do(func() {
		removed = c.dropIncoming(from)
		c.publish(EventIncoming, IncomingData{Requests: c.incoming})
	}); err != nil {
		return err
	}

	err := c.deps.Friendships.Decline(ctx, c.me, from)
	if err != nil {
		c.do(func() {
			c.restoreIncoming(removed)
			c.publish(EventIncoming, IncomingData{Requests: c.incoming})
			c.publishError("decline", err)
		})
	}
	return err
}

func (c *Coordinator) RemoveFriend(ctx context.Context, friend string) error {
	var wasFriend bool
	var before []profileDto.Profile
	if err := c.do(func() {
		_, wasFriend = c.friendIDs[friend]
		delete(c.friendIDs, friend)
		before = c.friends
		kept := make([]profileDto.Profile, 0, len(c.friends))
		for _, p := range c.friends {
			if p.UID != friend {
				kept = append(kept, p)
			}
		}
		c.friends = kept
		c.publish(EventFriends, kept)
	}); err != nil {
		return err
	}

	if err := c.deps.Friendships.RemoveFriend(ctx, c.me, friend); err != nil {
		c.do(func() {
			if wasFriend {
				c.friendIDs[friend] = struct{}{}
			}
			c.friends = before
			c.publish(EventFriends, before)
			c.publishError("remove_friend", err)
		})
		return err
	}
	return c.RefreshFriends(ctx)
}

// GiveMedal marks the medal used for today before the allocation runs.
// Quota-used keeps the mark; a self award or a failure rolls it back.
func (c *Coordinator) GiveMedal(ctx context.Context, medal entity.MedalType, recipient string) error {
	if !medal.Valid() {
		return apperror.ErrBadRequest
	}

	var before entity.AwardUsage
	if err := c.do(func() {
		before = c.usage
		c.usage.MarkUsed(medal)
		c.publish(EventUsage, c.usage)
	}); err != nil {
		return err
	}

	outcome, err := c.deps.Awards.Allocate(ctx, medal, c.me, recipient)
	if err != nil {
		c.do(func() {
			c.usage = before
			c.publish(EventUsage, c.usage)
			c.publishError("give_medal", err)
		})
		return err
	}

	c.do(func() {
		c.publish(EventMedal, MedalResult{Recipient: recipient, Medal: medal, Outcome: outcome})
	})
	return c.RefreshUsage(ctx)
}

func (c *Coordinator) Leaderboard(ctx context.Context) error {
	entries, err := c.deps.Leaderboards.FriendsLeaderboard(ctx, c.me)
	if derr := c.do(func() {
		if err != nil {
			c.publishError("leaderboard", err)
			return
		}
		c.publish(EventLeaderboard, entries)
	}); derr != nil {
		return derr
	}
	return err
}

// Loop-only helpers.

func (c *Coordinator) publishPending() {
	c.publish(EventPending, sortedKeys(c.pendingOutgoing))
}

func (c *Coordinator) dropIncoming(from string) *entity.FriendRequest {
	kept := make([]entity.FriendRequest, 0, len(c.incoming))
	var removed *entity.FriendRequest
	for i := range c.incoming {
		if c.incoming[i].FromUID == from {
			req := c.incoming[i]
			removed = &req
			continue
		}
		kept = append(kept, c.incoming[i])
	}
	c.incoming = kept
	return removed
}

// restoreIncoming puts req back unless a newer snapshot already has it.
func (c *Coordinator) restoreIncoming(req *entity.FriendRequest) {
	if req == nil {
		return
	}
	for _, r := range c.incoming {
		if r.FromUID == req.FromUID {
			return
		}
	}
	c.incoming = append([]entity.FriendRequest{*req}, c.incoming...)
}

// Reject reports a command that never reached a service.
func (c *Coordinator) Reject(op string, err error) {
	c.post(func() { c.publishError(op, err) })
}
