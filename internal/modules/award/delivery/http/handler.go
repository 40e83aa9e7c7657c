package http

import (
	"net/http"

	"anoa.com/drawsocial/internal/entity"
	awardDto "anoa.com/drawsocial/internal/modules/award/dto"
	awardService "anoa.com/drawsocial/internal/modules/award/service"
	"anoa.com/drawsocial/pkg/response"
	"anoa.com/drawsocial/pkg/validator"
	"github.com/gin-gonic/gin"
)

type AwardHandler struct {
	service awardService.AwardService
}

func NewAwardHandler(service awardService.AwardService) *AwardHandler {
	return &AwardHandler{service: service}
}

func (h *AwardHandler) GiveMedal(c *gin.Context) {
	giver, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req awardDto.GiveMedalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	medal, err := entity.ParseMedal(req.Medal)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.service.Allocate(c.Request.Context(), medal, giver, req.RecipientUID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, awardDto.GiveMedalResponse{
		Outcome:      string(outcome),
		Medal:        string(medal),
		RecipientUID: req.RecipientUID,
	})
}

func (h *AwardHandler) TodayUsage(c *gin.Context) {
	giver, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	usage, err := h.service.TodayUsage(c.Request.Context(), giver)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, awardDto.NewUsageResponse(usage))
}

func (h *AwardHandler) GetCounts(c *gin.Context) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	uid := c.Param("uid")

	counts, err := h.service.AggregateCounts(c.Request.Context(), uid)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	resp := awardDto.CountsResponse{UID: uid, Counts: counts}
	if uid != me {
		given, err := h.service.GivenTo(c.Request.Context(), me, uid)
		if err != nil {
			response.ResponseError(c, err)
			return
		}
		if given != nil {
			medal := string(*given)
			resp.GivenByMe = &medal
		}
	}

	c.JSON(http.StatusOK, resp)
}
