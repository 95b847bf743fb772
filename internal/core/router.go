package core

import (
	"context"

	"go.uber.org/zap"
)

// Router resolves an event's recipients to notification targets through
// the routing store, with static config rules as fallback.
type Router struct {
	store  RoutingStore
	static map[string][]string
	logger *zap.Logger
}

// NewRouter creates a router. staticRules maps mailbox addresses to
// target specs and is consulted when the store yields nothing.
func NewRouter(store RoutingStore, staticRules map[string][]string, logger *zap.Logger) *Router {
	return &Router{
		store:  store,
		static: staticRules,
		logger: logger,
	}
}

// Resolve returns the deduplicated targets for an event's recipients and
// owner mailbox. Malformed target specs are skipped with a log line, not
// propagated; an event with no resolvable targets is simply untargeted.
func (r *Router) Resolve(ctx context.Context, event *Event) []Target {
	addresses := make([]string, 0, len(event.Recipients)+1)
	seen := make(map[string]struct{}, len(event.Recipients)+1)
	for _, addr := range event.Recipients {
		if _, ok := seen[addr]; !ok {
			seen[addr] = struct{}{}
			addresses = append(addresses, addr)
		}
	}
	if event.Owner != "" {
		if _, ok := seen[event.Owner]; !ok {
			addresses = append(addresses, event.Owner)
		}
	}

	dedup := make(map[Target]struct{})
	var targets []Target
	for _, addr := range addresses {
		for _, target := range r.targetsFor(ctx, addr) {
			if _, ok := dedup[target]; ok {
				continue
			}
			dedup[target] = struct{}{}
			targets = append(targets, target)
		}
	}
	return targets
}

func (r *Router) targetsFor(ctx context.Context, address string) []Target {
	targets, err := r.store.TargetsFor(ctx, address)
	if err != nil {
		r.logger.Warn("Routing store lookup failed, falling back to static rules",
			zap.String("address", address),
			zap.Error(err))
		return r.staticTargetsFor(address)
	}
	if len(targets) == 0 {
		return r.staticTargetsFor(address)
	}
	return targets
}

func (r *Router) staticTargetsFor(address string) []Target {
	specs, ok := r.static[address]
	if !ok {
		return nil
	}
	targets := make([]Target, 0, len(specs))
	for _, spec := range specs {
		target, err := ParseTarget(spec)
		if err != nil {
			r.logger.Warn("Skipping malformed static target",
				zap.String("address", address),
				zap.String("spec", spec),
				zap.Error(err))
			continue
		}
		targets = append(targets, target)
	}
	return targets
}
