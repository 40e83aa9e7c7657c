package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"anoa.com/drawsocial/internal/entity"
	"anoa.com/drawsocial/internal/metrics"
	awardRepo "anoa.com/drawsocial/internal/modules/award/repository"
	"anoa.com/drawsocial/pkg/apperror"
)

type Outcome string

const (
	OutcomeAllocated Outcome = "allocated"
	// OutcomeQuotaUsed: the giver already spent this medal type today.
	OutcomeQuotaUsed Outcome = "quota_used"
	OutcomeSelfAward Outcome = "self_award"
)

// Notifier is the fire-and-forget sink told about newly received medals.
type Notifier interface {
	Notify(ctx context.Context, userID, actorID, kind, title, body string)
}

type AwardService interface {
	Allocate(ctx context.Context, medal entity.MedalType, giver, recipient string) (Outcome, error)
	AggregateCounts(ctx context.Context, recipient string) (entity.MedalCounts, error)
	TodayUsage(ctx context.Context, giver string) (entity.AwardUsage, error)
	GivenTo(ctx context.Context, giver, recipient string) (*entity.MedalType, error)
}

type awardService struct {
	repo     awardRepo.AwardRepository
	notifier Notifier
	metrics  metrics.Recorder
	logger   *slog.Logger
}

func NewAwardService(repo awardRepo.AwardRepository, notifier Notifier, recorder metrics.Recorder, logger *slog.Logger) AwardService {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &awardService{
		repo:     repo,
		notifier: notifier,
		metrics:  recorder,
		logger:   logger,
	}
}

func (s *awardService) Allocate(ctx context.Context, medal entity.MedalType, giver, recipient string) (Outcome, error) {
	if giver == "" {
		return "", apperror.ErrNotAuthenticated
	}
	if !medal.Valid() {
		return "", fmt.Errorf("%w: unknown medal %q", apperror.ErrInvalidInput, medal)
	}
	if strings.TrimSpace(recipient) == "" {
		return "", fmt.Errorf("%w: recipient is required", apperror.ErrInvalidInput)
	}
	if giver == recipient {
		s.metrics.RecordAward(string(medal), string(OutcomeSelfAward))
		return OutcomeSelfAward, nil
	}

	now, err := s.repo.ServerTime(ctx)
	if err != nil {
		return "", apperror.FromStore(err)
	}

	allocated, err := s.repo.Allocate(ctx, medal, giver, recipient, now)
	if err != nil {
		s.metrics.RecordAward(string(medal), "error")
		s.logger.Error("medal allocation failed",
			slog.String("medal", string(medal)),
			slog.String("giver", giver),
			slog.String("recipient", recipient),
			slog.String("error", err.Error()),
		)
		return "", apperror.FromStore(err)
	}

	if !allocated {
		s.metrics.RecordAward(string(medal), string(OutcomeQuotaUsed))
		s.logger.Debug("medal quota already used",
			slog.String("medal", string(medal)),
			slog.String("giver", giver),
			slog.String("day", entity.DayKey(now)),
		)
		return OutcomeQuotaUsed, nil
	}

	s.metrics.RecordAward(string(medal), string(OutcomeAllocated))
	s.logger.Info("medal allocated",
		slog.String("medal", string(medal)),
		slog.String("giver", giver),
		slog.String("recipient", recipient),
	)

	if s.notifier != nil {
		title := "You received a medal"
		body := fmt.Sprintf("Someone gave your drawing a %s medal", medal)
		s.notifier.Notify(ctx, recipient, giver, entity.NotificationMedalReceived, title, body)
	}

	return OutcomeAllocated, nil
}

func (s *awardService) AggregateCounts(ctx context.Context, recipient string) (entity.MedalCounts, error) {
	counts, err := s.repo.CountForRecipient(ctx, recipient)
	if err != nil {
		return entity.MedalCounts{}, apperror.FromStore(err)
	}
	return counts, nil
}

// TodayUsage restores which medal buttons are spent for the current UTC day.
func (s *awardService) TodayUsage(ctx context.Context, giver string) (entity.AwardUsage, error) {
	if giver == "" {
		return entity.AwardUsage{}, apperror.ErrNotAuthenticated
	}
	now, err := s.repo.ServerTime(ctx)
	if err != nil {
		return entity.AwardUsage{}, apperror.FromStore(err)
	}
	usage, err := s.repo.GetUsage(ctx, giver, entity.DayKey(now))
	if err != nil {
		return entity.AwardUsage{}, apperror.FromStore(err)
	}
	return usage, nil
}

func (s *awardService) GivenTo(ctx context.Context, giver, recipient string) (*entity.MedalType, error) {
	record, err := s.repo.GetRecord(ctx, recipient, giver)
	if err != nil {
		return nil, apperror.FromStore(err)
	}
	if record == nil {
		return nil, nil
	}
	medal, ok := record.Active()
	if !ok {
		return nil, nil
	}
	return &medal, nil
}
