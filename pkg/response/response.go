package response

import (
	"log/slog"
	"net/http"

	"anoa.com/drawsocial/pkg/apperror"
	"github.com/gin-gonic/gin"
)

// GetUserID retrieves the authenticated uid from the context
func GetUserID(c *gin.Context) (string, error) {
	userID := c.GetString("user_id")
	if userID == "" {
		return "", apperror.ErrNotAuthenticated
	}
	return userID, nil
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	if code >= http.StatusInternalServerError {
		slog.Error("internal error",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}

	c.JSON(code, gin.H{"error": err.Error()})
}
