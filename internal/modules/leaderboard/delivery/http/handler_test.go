package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	leaderboardDto "anoa.com/drawsocial/internal/modules/leaderboard/dto"
	"anoa.com/drawsocial/pkg/apperror"
	"github.com/gin-gonic/gin"
)

type mockLeaderboardService struct {
	fn func(ctx context.Context, me string) ([]leaderboardDto.Entry, error)
}

func (m *mockLeaderboardService) FriendsLeaderboard(ctx context.Context, me string) ([]leaderboardDto.Entry, error) {
	return m.fn(ctx, me)
}

func TestGetLeaderboard(t *testing.T) {
	tests := []struct {
		name       string
		uid        string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"ok", "me", nil, http.StatusOK, `"position":1`},
		{"unauthenticated", "", nil, http.StatusUnauthorized, "not authenticated"},
		{"store down", "me", apperror.ErrNetwork, http.StatusServiceUnavailable, "network error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockLeaderboardService{fn: func(ctx context.Context, me string) ([]leaderboardDto.Entry, error) {
				if tt.err != nil {
					return nil, tt.err
				}
				return []leaderboardDto.Entry{{UID: me, Position: 1, IsMe: true}}, nil
			}}

			gin.SetMode(gin.TestMode)
			r := gin.New()
			r.Use(func(c *gin.Context) {
				if tt.uid != "" {
					c.Set("user_id", tt.uid)
				}
				c.Next()
			})
			r.GET("/api/leaderboard", NewLeaderboardHandler(svc).GetLeaderboard)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}
