// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stage

import (
	"context"

	"github.com/ManuGH/hwenc/internal/encoder"
	"github.com/ManuGH/hwenc/internal/health"
)

// Name implements health.Checker.
func (s *Stage) Name() string { return "stage" }

// Check implements health.Checker: a fatal element error makes the stage
// unhealthy, a stopped or blocked stream makes it degraded.
func (s *Stage) Check(_ context.Context) health.CheckResult {
	if err := s.LastError(); err != nil {
		return health.CheckResult{Status: health.StatusUnhealthy, Error: err.Error(), Message: string(s.State())}
	}

	state := s.State()
	s.mu.Lock()
	flow := s.enc.Flow()
	s.mu.Unlock()

	switch {
	case state == StateNull:
		return health.CheckResult{Status: health.StatusDegraded, Message: "not started"}
	case flow != encoder.FlowOK:
		return health.CheckResult{Status: health.StatusDegraded, Message: "stream " + flow.String()}
	}
	return health.CheckResult{Status: health.StatusHealthy, Message: string(state)}
}

var _ health.Checker = (*Stage)(nil)
