package http

import (
	"context"
	"net/http"

	friendshipDto "anoa.com/drawsocial/internal/modules/friendship/dto"
	friendshipService "anoa.com/drawsocial/internal/modules/friendship/service"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	"anoa.com/drawsocial/pkg/response"
	"anoa.com/drawsocial/pkg/validator"
	"github.com/gin-gonic/gin"
)

// ProfileFetcher supplies the caller's handle and display name for outgoing requests.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, uid string) (*profileDto.Profile, error)
}

type FriendshipHandler struct {
	service  friendshipService.FriendshipService
	profiles ProfileFetcher
}

func NewFriendshipHandler(service friendshipService.FriendshipService, profiles ProfileFetcher) *FriendshipHandler {
	return &FriendshipHandler{service: service, profiles: profiles}
}

func (h *FriendshipHandler) SendRequest(c *gin.Context) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req friendshipDto.SendRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	sender, err := h.profiles.FetchProfile(c.Request.Context(), me)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.service.SendRequest(c.Request.Context(), me, req.ToUID, sender.Handle, sender.DisplayName); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "friend request sent"})
}

func (h *FriendshipHandler) Accept(c *gin.Context) {
	h.mutate(c, h.service.Accept, "friend request accepted")
}

func (h *FriendshipHandler) Decline(c *gin.Context) {
	h.mutate(c, h.service.Decline, "friend request declined")
}

func (h *FriendshipHandler) RemoveFriend(c *gin.Context) {
	h.mutate(c, h.service.RemoveFriend, "friend removed")
}

func (h *FriendshipHandler) mutate(c *gin.Context, op func(ctx context.Context, me, other string) error, message string) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	if err := op(c.Request.Context(), me, c.Param("uid")); err != nil {
		response.ResponseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func (h *FriendshipHandler) ListIncoming(c *gin.Context) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	requests, err := h.service.IncomingRequests(c.Request.Context(), me)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, friendshipDto.IncomingResponse{Requests: requests})
}

func (h *FriendshipHandler) HasPending(c *gin.Context) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	other := c.Param("uid")

	pending, err := h.service.HasPending(c.Request.Context(), me, other)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, friendshipDto.PendingResponse{From: me, To: other, Pending: pending})
}

func (h *FriendshipHandler) ListFriends(c *gin.Context) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	friends, err := h.service.Friends(c.Request.Context(), me)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, friendshipDto.FriendsResponse{Friends: friends})
}

func (h *FriendshipHandler) GetState(c *gin.Context) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	other := c.Param("uid")

	state, err := h.service.State(c.Request.Context(), me, other)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, friendshipDto.StateResponse{UID: other, State: state})
}
