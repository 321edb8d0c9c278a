// Package gacha turns the arrival ledger into a reward draw. The resolver
// watches the session's trigger condition and, once it fires, ranks the
// ledger under the configured policy and caches the result for the rest of
// the session.
package gacha

import (
	"fmt"

	"pinball-gacha/server/internal/ledger"
)

// TriggerKind selects when resolution fires.
type TriggerKind string

const (
	// TriggerAllExited resolves once every spawned ball has left the field.
	TriggerAllExited TriggerKind = "all_exited"
	// TriggerQuotaReached resolves once the ledger holds Quota arrivals.
	TriggerQuotaReached TriggerKind = "quota_reached"
)

// Trigger is the configured resolution condition.
type Trigger struct {
	Kind  TriggerKind `json:"kind" yaml:"kind"`
	Quota int         `json:"quota,omitempty" yaml:"quota,omitempty"`
}

// Validate rejects malformed triggers before a session starts.
func (t Trigger) Validate() error {
	switch t.Kind {
	case TriggerAllExited:
		return nil
	case TriggerQuotaReached:
		if t.Quota < 1 {
			return fmt.Errorf("gacha: quota trigger needs a quota of at least 1, got %d", t.Quota)
		}
		return nil
	}
	return fmt.Errorf("gacha: unknown trigger kind %q", t.Kind)
}

// Result is the sealed outcome of one session. Picks holds the first K ball
// references under the policy, keyed on the unique ball id so duplicate
// participant names cannot blur the draw; when the ledger is shorter than K
// it holds everything that arrived, which is a documented edge case and not
// an error.
type Result struct {
	Policy       ledger.Policy    `json:"policy"`
	Picks        []ledger.BallRef `json:"picks"`
	DrawCount    int              `json:"drawCount"`
	Trigger      TriggerKind      `json:"trigger"`
	Forced       bool             `json:"forced"`
	ResolvedTick uint64           `json:"resolvedTick"`
}

func (r Result) clone() Result {
	picks := make([]ledger.BallRef, len(r.Picks))
	copy(picks, r.Picks)
	r.Picks = picks
	return r
}

// Resolver owns the trigger state and the cached result for one session.
type Resolver struct {
	policy    ledger.Policy
	trigger   Trigger
	drawCount int

	result *Result
}

// NewResolver validates the draw configuration and returns a resolver with
// no cached result.
func NewResolver(policy ledger.Policy, trigger Trigger, drawCount int) (*Resolver, error) {
	if !policy.Valid() {
		return nil, fmt.Errorf("gacha: unknown policy %q", policy)
	}
	if err := trigger.Validate(); err != nil {
		return nil, err
	}
	if drawCount < 1 {
		return nil, fmt.Errorf("gacha: draw count must be at least 1, got %d", drawCount)
	}
	return &Resolver{policy: policy, trigger: trigger, drawCount: drawCount}, nil
}

// Policy returns the configured query policy.
func (r *Resolver) Policy() ledger.Policy {
	return r.policy
}

// Trigger returns the configured resolution condition.
func (r *Resolver) Trigger() Trigger {
	return r.trigger
}

// DrawCount returns the configured K.
func (r *Resolver) DrawCount() int {
	return r.drawCount
}

// Satisfied reports whether the trigger condition holds for the given ball
// accounting. spawned counts every ball the session created; exited counts
// ledger entries.
func (r *Resolver) Satisfied(spawned, exited int) bool {
	switch r.trigger.Kind {
	case TriggerAllExited:
		return spawned > 0 && exited >= spawned
	case TriggerQuotaReached:
		return exited >= r.trigger.Quota
	}
	return false
}

// Resolve computes and caches the result. The first call seals the outcome;
// later calls return the sealed value no matter how the ledger has moved,
// which keeps the result stable even if a trapped ball drops in afterwards.
// forced marks results produced by the stall-safety limit rather than the
// configured trigger.
func (r *Resolver) Resolve(led *ledger.Ledger, tick uint64, forced bool) Result {
	if r.result != nil {
		return r.result.clone()
	}

	ranked := led.Query(r.policy)
	k := r.drawCount
	if k > len(ranked) {
		k = len(ranked)
	}
	result := Result{
		Policy:       r.policy,
		Picks:        ranked[:k],
		DrawCount:    r.drawCount,
		Trigger:      r.trigger.Kind,
		Forced:       forced,
		ResolvedTick: tick,
	}
	r.result = &result
	return result.clone()
}

// Result returns the cached outcome, if resolution has fired.
func (r *Resolver) Result() (Result, bool) {
	if r == nil || r.result == nil {
		return Result{}, false
	}
	return r.result.clone(), true
}

// Resolved reports whether the outcome is sealed.
func (r *Resolver) Resolved() bool {
	return r != nil && r.result != nil
}
