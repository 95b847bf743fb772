package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("user:U123")
	require.NoError(t, err)
	assert.Equal(t, Target{ID: "U123", Type: TargetUser}, target)

	target, err = ParseTarget("channel:C456")
	require.NoError(t, err)
	assert.Equal(t, Target{ID: "C456", Type: TargetChannel}, target)

	for _, spec := range []string{"group:G1", "user:", "U123", ""} {
		_, err := ParseTarget(spec)
		assert.Error(t, err, "spec %q", spec)
	}
}

func TestRouterResolveDeduplicates(t *testing.T) {
	store := &fakeRouting{targets: map[string][]Target{
		"a@corp.com": {{ID: "U1", Type: TargetUser}, {ID: "C1", Type: TargetChannel}},
		"b@corp.com": {{ID: "U1", Type: TargetUser}},
	}}
	r := NewRouter(store, nil, zap.NewNop())

	targets := r.Resolve(context.Background(), &Event{
		Recipients: []string{"a@corp.com", "b@corp.com"},
		Owner:      "a@corp.com",
	})

	assert.ElementsMatch(t, []Target{
		{ID: "U1", Type: TargetUser},
		{ID: "C1", Type: TargetChannel},
	}, targets)
}

func TestRouterResolveFallsBackToStatic(t *testing.T) {
	static := map[string][]string{
		"a@corp.com": {"user:U9", "channel:C9"},
	}

	// Store error
	r := NewRouter(&fakeRouting{err: errors.New("store down")}, static, zap.NewNop())
	targets := r.Resolve(context.Background(), &Event{Owner: "a@corp.com"})
	assert.ElementsMatch(t, []Target{
		{ID: "U9", Type: TargetUser},
		{ID: "C9", Type: TargetChannel},
	}, targets)

	// Store empty
	r = NewRouter(&fakeRouting{targets: map[string][]Target{}}, static, zap.NewNop())
	targets = r.Resolve(context.Background(), &Event{Owner: "a@corp.com"})
	assert.Len(t, targets, 2)
}

func TestRouterResolveSkipsMalformedStaticSpecs(t *testing.T) {
	static := map[string][]string{
		"a@corp.com": {"user:U9", "bogus", "team:T1"},
	}
	r := NewRouter(&fakeRouting{}, static, zap.NewNop())

	targets := r.Resolve(context.Background(), &Event{Owner: "a@corp.com"})

	assert.Equal(t, []Target{{ID: "U9", Type: TargetUser}}, targets)
}

func TestRouterResolveNoTargets(t *testing.T) {
	r := NewRouter(&fakeRouting{}, nil, zap.NewNop())
	targets := r.Resolve(context.Background(), &Event{Owner: "nobody@corp.com"})
	assert.Empty(t, targets)
}
