package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGovernorAllowsWhenNoStatus(t *testing.T) {
	g := NewGovernor(&fakeSettings{}, zap.NewNop())
	enabled, reason := g.IsEnabled(context.Background())
	assert.True(t, enabled)
	assert.Empty(t, reason)
}

func TestGovernorPauseFlag(t *testing.T) {
	settings := &fakeSettings{status: &SystemStatus{Enabled: false, PauseReason: "maintenance window"}}
	g := NewGovernor(settings, zap.NewNop())

	enabled, reason := g.IsEnabled(context.Background())
	assert.False(t, enabled)
	assert.Equal(t, "maintenance window", reason)
}

func TestGovernorCallCeiling(t *testing.T) {
	settings := &fakeSettings{
		status: &SystemStatus{Enabled: true, DailyLimitCalls: 100},
		usage:  &DailyUsage{Calls: 100},
	}
	g := NewGovernor(settings, zap.NewNop())

	enabled, reason := g.IsEnabled(context.Background())
	assert.False(t, enabled)
	assert.Contains(t, reason, "daily call limit")
}

func TestGovernorCostCeiling(t *testing.T) {
	settings := &fakeSettings{
		status: &SystemStatus{Enabled: true, DailyLimitCalls: 1000, DailyLimitCostUSD: 5.0},
		usage:  &DailyUsage{Calls: 10, CostUSD: 5.5},
	}
	g := NewGovernor(settings, zap.NewNop())

	enabled, reason := g.IsEnabled(context.Background())
	assert.False(t, enabled)
	assert.Contains(t, reason, "daily cost limit")
}

func TestGovernorUnderCeilings(t *testing.T) {
	settings := &fakeSettings{
		status: &SystemStatus{Enabled: true, DailyLimitCalls: 1000, DailyLimitCostUSD: 5.0},
		usage:  &DailyUsage{Calls: 10, CostUSD: 0.02},
	}
	g := NewGovernor(settings, zap.NewNop())

	enabled, _ := g.IsEnabled(context.Background())
	assert.True(t, enabled)
}

func TestGovernorPauseBeatsCeilings(t *testing.T) {
	settings := &fakeSettings{
		status: &SystemStatus{Enabled: false, DailyLimitCalls: 1000},
		usage:  &DailyUsage{Calls: 2000},
	}
	g := NewGovernor(settings, zap.NewNop())

	enabled, reason := g.IsEnabled(context.Background())
	assert.False(t, enabled)
	assert.Equal(t, "system paused", reason)
}
