package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	"anoa.com/drawsocial/pkg/apperror"
	"github.com/gin-gonic/gin"
)

type mockProfileService struct {
	fetchFn func(ctx context.Context, uid string) (*profileDto.Profile, error)
}

func (m *mockProfileService) FetchProfile(ctx context.Context, uid string) (*profileDto.Profile, error) {
	return m.fetchFn(ctx, uid)
}

func (m *mockProfileService) HydrateAll(ctx context.Context, uids []string) ([]profileDto.Profile, error) {
	return nil, nil
}

func newRouter(h *ProfileHandler, uid string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	})
	r.GET("/api/profile/me", h.GetCurrentProfile)
	r.GET("/api/users/:uid", h.GetProfile)
	return r
}

func TestProfileHandler(t *testing.T) {
	svc := &mockProfileService{fetchFn: func(ctx context.Context, uid string) (*profileDto.Profile, error) {
		if uid == "ghost" {
			return nil, fmt.Errorf("user ghost: %w", apperror.ErrNotFound)
		}
		return &profileDto.Profile{UID: uid, Handle: "h_" + uid}, nil
	}}

	tests := []struct {
		name       string
		caller     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"me", "u1", "/api/profile/me", http.StatusOK, `"uid":"u1"`},
		{"me unauthenticated", "", "/api/profile/me", http.StatusUnauthorized, "not authenticated"},
		{"other user", "u1", "/api/users/u2", http.StatusOK, `"handle":"h_u2"`},
		{"unknown user", "u1", "/api/users/ghost", http.StatusNotFound, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(NewProfileHandler(svc), tt.caller)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}
