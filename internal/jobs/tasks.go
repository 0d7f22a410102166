package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/scenarr/scenarr/internal/monitor"
	"github.com/scenarr/scenarr/internal/scheduler"
)

// Task names.
const (
	TaskMonitor   = "monitor"
	TaskDiscovery = "discovery"
)

// MonitorTask polls the torrent client and then runs a short retry pass.
// An unreachable client is logged rather than failing the task.
func MonitorTask(mon *monitor.Monitor, retrier *monitor.Retrier, logger zerolog.Logger) scheduler.TaskFunc {
	logger = logger.With().Str("component", "monitor_task").Logger()
	return func(ctx context.Context) error {
		if _, err := mon.Poll(ctx); err != nil {
			logger.Warn().Err(err).Str("run_id", scheduler.RunID(ctx)).Msg("monitor poll failed")
		}
		_, err := retrier.Run(ctx, monitor.CadenceShort)
		return err
	}
}

// Register adds the default tasks to s.
func Register(s *scheduler.Scheduler, pollInterval, discoveryInterval time.Duration, monitorTask scheduler.TaskFunc, discovery *Discovery) error {
	if err := s.AddTask(TaskMonitor, pollInterval, monitorTask); err != nil {
		return err
	}
	return s.AddTask(TaskDiscovery, discoveryInterval, discovery.Run)
}
