package http

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"anoa.com/drawsocial/internal/entity"
	sessionDto "anoa.com/drawsocial/internal/modules/session/dto"
	sessionService "anoa.com/drawsocial/internal/modules/session/service"
	"anoa.com/drawsocial/pkg/apperror"
	"anoa.com/drawsocial/pkg/response"
	appValidator "anoa.com/drawsocial/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
)

// SessionFactory builds an unstarted coordinator for uid.
type SessionFactory func(uid string) *sessionService.Coordinator

type SessionHandler struct {
	newSession SessionFactory
	upgrader   websocket.Upgrader
	validate   *validator.Validate
	opTimeout  time.Duration
	logger     *slog.Logger
}

func NewSessionHandler(newSession SessionFactory, upgrader websocket.Upgrader, opTimeout time.Duration, logger *slog.Logger) *SessionHandler {
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		newSession: newSession,
		upgrader:   upgrader,
		validate:   validator.New(),
		opTimeout:  opTimeout,
		logger:     logger,
	}
}

// HandleWebSocket runs one session for the lifetime of the socket. Session
// events are written as JSON frames; client frames are commands.
func (h *SessionHandler) HandleWebSocket(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session := h.newSession(userID)
	defer session.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range session.Events() {
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				cancel()
				conn.Close()
				return
			}
		}
	}()

	if err := session.Start(ctx); err != nil {
		h.logger.Warn("session start failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		session.Close()
		<-writerDone
		return
	}

	var inflight sync.WaitGroup
	for {
		var cmd sessionDto.Command
		if err := conn.ReadJSON(&cmd); err != nil {
			break
		}
		if err := h.check(cmd); err != nil {
			session.Reject(cmd.Type, err)
			continue
		}
		if cmd.Type == sessionDto.CommandSearch {
			session.Search(cmd.Query)
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			opCtx, opCancel := context.WithTimeout(ctx, h.opTimeout)
			defer opCancel()
			if err := h.dispatch(opCtx, session, cmd); err != nil {
				h.logger.Debug("session command failed",
					slog.String("user_id", userID),
					slog.String("command", cmd.Type),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	cancel()
	inflight.Wait()
	session.Close()
	<-writerDone
}

func (h *SessionHandler) check(cmd sessionDto.Command) error {
	if err := h.validate.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %s", apperror.ErrInvalidInput, appValidator.FormatValidationError(err))
	}
	if cmd.NeedsUID() && cmd.UID == "" {
		return fmt.Errorf("%w: uid is required", apperror.ErrInvalidInput)
	}
	if cmd.Type == sessionDto.CommandGiveMedal && cmd.Medal == "" {
		return fmt.Errorf("%w: medal is required", apperror.ErrInvalidInput)
	}
	return nil
}

func (h *SessionHandler) dispatch(ctx context.Context, session *sessionService.Coordinator, cmd sessionDto.Command) error {
	switch cmd.Type {
	case sessionDto.CommandSendRequest:
		return session.SendRequest(ctx, cmd.UID)
	case sessionDto.CommandAccept:
		return session.Accept(ctx, cmd.UID)
	case sessionDto.CommandDecline:
		return session.Decline(ctx, cmd.UID)
	case sessionDto.CommandRemoveFriend:
		return session.RemoveFriend(ctx, cmd.UID)
	case sessionDto.CommandGiveMedal:
		medal, err := entity.ParseMedal(cmd.Medal)
		if err != nil {
			return err
		}
		return session.GiveMedal(ctx, medal, cmd.UID)
	case sessionDto.CommandRefresh:
		if err := session.RefreshUsage(ctx); err != nil {
			return err
		}
		return session.RefreshFriends(ctx)
	case sessionDto.CommandLeaderboard:
		return session.Leaderboard(ctx)
	}
	return nil
}
