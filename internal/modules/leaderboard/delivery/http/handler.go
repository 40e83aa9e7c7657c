package http

import (
	"net/http"

	leaderboardDto "anoa.com/drawsocial/internal/modules/leaderboard/dto"
	leaderboardService "anoa.com/drawsocial/internal/modules/leaderboard/service"
	"anoa.com/drawsocial/pkg/response"
	"github.com/gin-gonic/gin"
)

type LeaderboardHandler struct {
	service leaderboardService.LeaderboardService
}

func NewLeaderboardHandler(service leaderboardService.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{service: service}
}

func (h *LeaderboardHandler) GetLeaderboard(c *gin.Context) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	entries, err := h.service.FriendsLeaderboard(c.Request.Context(), me)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, leaderboardDto.LeaderboardResponse{Data: entries})
}
