package http

import (
	"context"
	"net/http"

	searchDto "anoa.com/drawsocial/internal/modules/search/dto"
	searchService "anoa.com/drawsocial/internal/modules/search/service"
	"anoa.com/drawsocial/pkg/response"
	"anoa.com/drawsocial/pkg/validator"
	"github.com/gin-gonic/gin"
)

// FriendLister supplies the caller's friends for result annotation.
type FriendLister interface {
	FriendIDs(ctx context.Context, me string) ([]string, error)
}

type SearchHandler struct {
	service searchService.SearchService
	friends FriendLister
}

func NewSearchHandler(service searchService.SearchService, friends FriendLister) *SearchHandler {
	return &SearchHandler{service: service, friends: friends}
}

func (h *SearchHandler) SearchUsers(c *gin.Context) {
	me, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var query searchDto.SearchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	ids, err := h.friends.FriendIDs(c.Request.Context(), me)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	friends := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		friends[id] = struct{}{}
	}

	hits, err := h.service.SearchFor(c.Request.Context(), me, query.Query, query.Limit, friends)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, searchDto.SearchResponse{Query: query.Query, Hits: hits})
}
