package config

import "time"

// SchedulerConfig configures the schedule-store tick loop.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler polls the schedule store
	// for due tasks (scheduler.Scheduler.WithTickInterval).
	TickInterval time.Duration `yaml:"tick_interval"`
}

// SupervisorConfig configures the service supervisor's startup and
// health-poll timing, and which registered services are additionally
// exposed over RPC for out-of-process callers.
type SupervisorConfig struct {
	StartupTimeout     time.Duration `yaml:"startup_timeout"`
	HealthPollInterval time.Duration `yaml:"health_poll_interval"`
	HealthPollTimeout  time.Duration `yaml:"health_poll_timeout"`

	// RemoteServices maps a registered service id to the TCP address
	// its RPC endpoint should listen on, e.g. {"toolbox": ":7401"}.
	// Services not listed here are only reachable in-process via
	// Supervisor.CallService.
	RemoteServices map[string]string `yaml:"remote_services"`
}
