package agent

import "context"

// Agent is a background job the scheduler can run on a cron schedule or on demand.
type Agent interface {
	// GetName identifies the agent in logs.
	GetName() string

	// GetSchedule returns a cron expression such as "0 3 * * *", or "" for
	// an on-demand agent.
	GetSchedule() string

	Execute(ctx context.Context) error
}
