package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Check is a named dependency probe, e.g. a database ping.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Watch runs every check each interval and reports the results through
// SetServing until ctx is done. The overall status is serving only when
// every check passes.
func (s *Server) Watch(ctx context.Context, interval time.Duration, checks ...Check) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	s.runChecks(ctx, checks)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runChecks(ctx, checks)
		}
	}
}

func (s *Server) runChecks(ctx context.Context, checks []Check) {
	healthy := true
	for _, c := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := c.Probe(probeCtx)
		cancel()
		if err != nil {
			healthy = false
			s.logger.Warn("health check failed", zap.String("check", c.Name), zap.Error(err))
		}
		s.SetServing(c.Name, err == nil)
	}
	s.SetServing("", healthy)
}
