package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Governor gates batch runs on the operator pause flag and the daily
// call/cost ceilings. Checks run in that order; the first failure wins.
type Governor struct {
	settings SettingsStore
	logger   *zap.Logger
}

// NewGovernor creates a governor
func NewGovernor(settings SettingsStore, logger *zap.Logger) *Governor {
	return &Governor{settings: settings, logger: logger}
}

// IsEnabled reports whether processing may run now. When blocked, the
// returned reason names the tripped gate. Settings store failures do not
// block processing.
func (g *Governor) IsEnabled(ctx context.Context) (bool, string) {
	status, err := g.settings.SystemStatus(ctx)
	if err != nil {
		g.logger.Warn("Failed to load system status, allowing run", zap.Error(err))
		return true, ""
	}
	if status == nil {
		return true, ""
	}

	if !status.Enabled {
		reason := status.PauseReason
		if reason == "" {
			reason = "system paused"
		}
		return false, reason
	}

	if status.DailyLimitCalls <= 0 && status.DailyLimitCostUSD <= 0 {
		return true, ""
	}

	usage, err := g.settings.DailyUsage(ctx)
	if err != nil {
		g.logger.Warn("Failed to load daily usage, allowing run", zap.Error(err))
		return true, ""
	}
	if usage == nil {
		return true, ""
	}

	if status.DailyLimitCalls > 0 && usage.Calls >= status.DailyLimitCalls {
		return false, fmt.Sprintf("daily call limit reached (%d/%d)", usage.Calls, status.DailyLimitCalls)
	}
	if status.DailyLimitCostUSD > 0 && usage.CostUSD >= status.DailyLimitCostUSD {
		return false, fmt.Sprintf("daily cost limit reached ($%.2f/$%.2f)", usage.CostUSD, status.DailyLimitCostUSD)
	}

	return true, ""
}
