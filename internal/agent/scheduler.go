package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs registered agents on their cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	agents  []Agent
	logger  *slog.Logger
	timeout time.Duration
}

func NewScheduler(logger *slog.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:    cron.New(),
		agents:  make([]Agent, 0),
		logger:  logger,
		timeout: timeout,
	}
}

// RegisterAgent adds agent and schedules it when it has a schedule.
func (s *Scheduler) RegisterAgent(agent Agent) error {
	s.agents = append(s.agents, agent)

	schedule := agent.GetSchedule()
	if schedule == "" {
		s.logger.Info("agent registered on demand", slog.String("agent", agent.GetName()))
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.run(context.Background(), agent) }); err != nil {
		return fmt.Errorf("schedule agent %s: %w", agent.GetName(), err)
	}
	s.logger.Info("agent scheduled",
		slog.String("agent", agent.GetName()),
		slog.String("schedule", schedule),
	)
	return nil
}

func (s *Scheduler) run(ctx context.Context, agent Agent) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := agent.Execute(ctx); err != nil {
		s.logger.Error("agent failed",
			slog.String("agent", agent.GetName()),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Info("agent completed",
		slog.String("agent", agent.GetName()),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("agents", len(s.agents)))
}

// Stop waits for running jobs up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduler stopped")
}

// RunAgentByName runs a registered agent immediately.
func (s *Scheduler) RunAgentByName(ctx context.Context, name string) error {
	for _, agent := range s.agents {
		if agent.GetName() == name {
			return s.run(ctx, agent)
		}
	}
	return fmt.Errorf("agent %q not registered", name)
}

func (s *Scheduler) GetRegisteredAgents() []string {
	names := make([]string, len(s.agents))
	for i, agent := range s.agents {
		names[i] = agent.GetName()
	}
	return names
}
