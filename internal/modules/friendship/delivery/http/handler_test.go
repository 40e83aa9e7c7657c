package http

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"anoa.com/drawsocial/internal/logger"
	friendshipRepo "anoa.com/drawsocial/internal/modules/friendship/repository"
	friendshipService "anoa.com/drawsocial/internal/modules/friendship/service"
	profileDto "anoa.com/drawsocial/internal/modules/profile/dto"
	"anoa.com/drawsocial/pkg/apperror"
	"anoa.com/drawsocial/pkg/docstore"
	"github.com/gin-gonic/gin"
)

type stubProfiles struct{}

func (stubProfiles) FetchProfile(ctx context.Context, uid string) (*profileDto.Profile, error) {
	if uid == "ghost" {
		return nil, fmt.Errorf("user ghost: %w", apperror.ErrNotFound)
	}
	return &profileDto.Profile{UID: uid, Handle: "h_" + uid, DisplayName: "D " + uid}, nil
}

func (stubProfiles) HydrateAll(ctx context.Context, uids []string) ([]profileDto.Profile, error) {
	out := make([]profileDto.Profile, 0, len(uids))
	for _, uid := range uids {
		out = append(out, profileDto.Profile{UID: uid, DisplayName: "D " + uid})
	}
	return out, nil
}

func setup() *FriendshipHandler {
	repo := friendshipRepo.NewFriendshipRepository(docstore.NewMemoryStore())
	svc := friendshipService.NewFriendshipService(repo, stubProfiles{}, nil, nil, logger.Discard())
	return NewFriendshipHandler(svc, stubProfiles{})
}

func newRouter(h *FriendshipHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid := c.GetHeader("X-Test-User"); uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	})
	r.POST("/api/friends/requests", h.SendRequest)
	r.GET("/api/friends/requests", h.ListIncoming)
	r.POST("/api/friends/requests/:uid/accept", h.Accept)
	r.DELETE("/api/friends/requests/:uid", h.Decline)
	r.GET("/api/friends/requests/:uid/pending", h.HasPending)
	r.GET("/api/friends", h.ListFriends)
	r.DELETE("/api/friends/:uid", h.RemoveFriend)
	r.GET("/api/friends/:uid/state", h.GetState)
	return r
}

func do(r *gin.Engine, user, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestFriendshipFlow(t *testing.T) {
	r := newRouter(setup())

	steps := []struct {
		name       string
		user       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"send", "a", http.MethodPost, "/api/friends/requests", `{"to_uid":"b"}`, http.StatusCreated, "sent"},
		{"pending from a", "a", http.MethodGet, "/api/friends/requests/b/pending", "", http.StatusOK, `"pending":true`},
		{"b sees request", "b", http.MethodGet, "/api/friends/requests", "", http.StatusOK, `"from_handle":"h_a"`},
		{"state for a", "a", http.MethodGet, "/api/friends/b/state", "", http.StatusOK, `"state":"pending_outgoing"`},
		{"accept", "b", http.MethodPost, "/api/friends/requests/a/accept", "", http.StatusOK, "accepted"},
		{"accept again", "b", http.MethodPost, "/api/friends/requests/a/accept", "", http.StatusNotFound, "error"},
		{"a lists friends", "a", http.MethodGet, "/api/friends", "", http.StatusOK, `"uid":"b"`},
		{"remove", "a", http.MethodDelete, "/api/friends/b", "", http.StatusOK, "removed"},
		{"state after remove", "b", http.MethodGet, "/api/friends/a/state", "", http.StatusOK, `"state":"none"`},
	}

	for _, s := range steps {
		w := do(r, s.user, s.method, s.path, s.body)
		if w.Code != s.wantStatus {
			t.Fatalf("%s: status = %d, want %d (body %s)", s.name, w.Code, s.wantStatus, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), s.wantBody) {
			t.Errorf("%s: body = %s, want it to contain %s", s.name, w.Body.String(), s.wantBody)
		}
	}
}

func TestSendRequest_Errors(t *testing.T) {
	r := newRouter(setup())

	tests := []struct {
		name       string
		user       string
		body       string
		wantStatus int
	}{
		{"unauthenticated", "", `{"to_uid":"b"}`, http.StatusUnauthorized},
		{"missing target", "a", `{}`, http.StatusBadRequest},
		{"self", "a", `{"to_uid":"a"}`, http.StatusBadRequest},
		{"sender without profile", "ghost", `{"to_uid":"b"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.user, http.MethodPost, "/api/friends/requests", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
