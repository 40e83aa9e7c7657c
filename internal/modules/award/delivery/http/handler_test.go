package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"anoa.com/drawsocial/internal/entity"
	awardService "anoa.com/drawsocial/internal/modules/award/service"
	"anoa.com/drawsocial/pkg/apperror"
	"github.com/gin-gonic/gin"
)

type mockAwardService struct {
	allocateFn func(ctx context.Context, medal entity.MedalType, giver, recipient string) (awardService.Outcome, error)
	countsFn   func(ctx context.Context, recipient string) (entity.MedalCounts, error)
	givenToFn  func(ctx context.Context, giver, recipient string) (*entity.MedalType, error)
}

func (m *mockAwardService) Allocate(ctx context.Context, medal entity.MedalType, giver, recipient string) (awardService.Outcome, error) {
	return m.allocateFn(ctx, medal, giver, recipient)
}

func (m *mockAwardService) AggregateCounts(ctx context.Context, recipient string) (entity.MedalCounts, error) {
	return m.countsFn(ctx, recipient)
}

func (m *mockAwardService) TodayUsage(ctx context.Context, giver string) (entity.AwardUsage, error) {
	return entity.AwardUsage{Day: "2026-05-01", GoldUsed: true}, nil
}

func (m *mockAwardService) GivenTo(ctx context.Context, giver, recipient string) (*entity.MedalType, error) {
	return m.givenToFn(ctx, giver, recipient)
}

func newRouter(h *AwardHandler, uid string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if uid != "" {
			c.Set("user_id", uid)
		}
		c.Next()
	})
	r.POST("/api/awards", h.GiveMedal)
	r.GET("/api/awards/today", h.TodayUsage)
	r.GET("/api/awards/:uid/counts", h.GetCounts)
	return r
}

func TestGiveMedal(t *testing.T) {
	tests := []struct {
		name       string
		uid        string
		body       string
		result     awardService.Outcome
		err        error
		wantStatus int
		wantBody   string
	}{
		{"allocated", "g", `{"recipient_uid":"r","medal":"gold"}`, awardService.OutcomeAllocated, nil, http.StatusOK, `"outcome":"allocated"`},
		{"quota used is not an error", "g", `{"recipient_uid":"r","medal":"gold"}`, awardService.OutcomeQuotaUsed, nil, http.StatusOK, `"outcome":"quota_used"`},
		{"unknown medal", "g", `{"recipient_uid":"r","medal":"tin"}`, "", nil, http.StatusBadRequest, "medal must be one of"},
		{"missing recipient", "g", `{"medal":"gold"}`, "", nil, http.StatusBadRequest, "recipient_uid is required"},
		{"unauthenticated", "", `{"recipient_uid":"r","medal":"gold"}`, "", nil, http.StatusUnauthorized, "not authenticated"},
		{"conflict", "g", `{"recipient_uid":"r","medal":"silver"}`, "", fmt.Errorf("%w: retries", apperror.ErrTransactionConflict), http.StatusConflict, "transaction conflict"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAwardService{
				allocateFn: func(ctx context.Context, medal entity.MedalType, giver, recipient string) (awardService.Outcome, error) {
					return tt.result, tt.err
				},
			}
			r := newRouter(NewAwardHandler(svc), tt.uid)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/awards", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestGetCounts_IncludesCallersMedal(t *testing.T) {
	gold := entity.MedalGold
	svc := &mockAwardService{
		countsFn: func(ctx context.Context, recipient string) (entity.MedalCounts, error) {
			return entity.MedalCounts{Gold: 3, Bronze: 1}, nil
		},
		givenToFn: func(ctx context.Context, giver, recipient string) (*entity.MedalType, error) {
			if giver != "me" || recipient != "artist" {
				t.Errorf("GivenTo(%s, %s)", giver, recipient)
			}
			return &gold, nil
		},
	}
	r := newRouter(NewAwardHandler(svc), "me")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/awards/artist/counts", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		UID       string             `json:"uid"`
		Counts    entity.MedalCounts `json:"counts"`
		GivenByMe *string            `json:"given_by_me"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Counts.Gold != 3 || body.GivenByMe == nil || *body.GivenByMe != "gold" {
		t.Errorf("body = %+v", body)
	}
}

func TestTodayUsage(t *testing.T) {
	r := newRouter(NewAwardHandler(&mockAwardService{}), "g")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/awards/today", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"gold":true`) {
		t.Errorf("body = %s", w.Body.String())
	}
}
