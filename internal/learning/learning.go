// Package learning implements the operational heuristic engine: it watches
// completed lineage cycles and tracks, per rejection-pattern signature, how
// often a cycle with that pattern ended in successful execution. It is
// advisory-only.
//
// Iron Rule: this package must never import internal/governance, directly
// or transitively. Heuristics bias which rung the strategy generator tries
// next; they can never approve, reject, or escalate a decision themselves.
package learning

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gap-kernel/gap/internal/model"
)

const emaAlpha = 0.3

// Engine tracks OperationalHeuristics keyed by pattern signature, updated
// from completed lineage cycles via an exponential moving average of
// outcome success.
type Engine struct {
	mu         sync.RWMutex
	heuristics map[string]model.OperationalHeuristic
	clock      func() time.Time
}

// New returns an empty Engine using the real wall clock.
func New() *Engine {
	return &Engine{heuristics: make(map[string]model.OperationalHeuristic), clock: time.Now}
}

// LearnFromLineage extracts a pattern signature from a completed cycle and
// updates (or creates) its heuristic. A single-attempt cycle (no prior
// rejection to learn from) is a no-op.
func (e *Engine) LearnFromLineage(record model.LineageRecord) {
	if record.TotalAttempts <= 1 {
		return
	}

	pattern := patternSignature(record)
	if pattern == "" {
		return
	}

	now := e.clock()
	e.mu.Lock()
	defer e.mu.Unlock()

	h, exists := e.heuristics[pattern]
	if !exists {
		h = model.OperationalHeuristic{
			ID:               "heur_" + pattern,
			PatternSignature: pattern,
			Status:           "active",
			FirstSeen:        now,
		}
		if record.ExecutionSuccess {
			h.SuccessRate = 1
		}
	} else {
		outcome := 0.0
		if record.ExecutionSuccess {
			outcome = 1.0
		}
		h.SuccessRate = emaAlpha*outcome + (1-emaAlpha)*h.SuccessRate
	}
	h.HitCount++
	h.LastUpdated = now
	e.heuristics[pattern] = h
}

// patternSignature derives a stable key from the sequence of rejection
// reasons across a cycle's governance decisions, so similar drift+rejection
// shapes converge onto the same heuristic regardless of intent identity.
func patternSignature(record model.LineageRecord) string {
	var reasons []string
	for _, d := range record.GovernanceDecisions {
		if d.Verdict == model.VerdictRejected && d.RejectionReason != "" {
			reasons = append(reasons, d.RejectionReason)
		}
	}
	if len(reasons) == 0 {
		return ""
	}
	return strings.Join(reasons, "+")
}

// Advise implements strategy.HeuristicAdvisor: returns active heuristics
// whose pattern signature matches, ranked hit_count*success_rate descending.
// The strategy generator consults this only to bias which legal rung to try
// first among those rejection-signature filtering already allows; it cannot
// widen that set.
func (e *Engine) Advise(pattern string) []model.OperationalHeuristic {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []model.OperationalHeuristic
	for _, h := range e.heuristics {
		if h.Status != "active" {
			continue
		}
		if pattern != "" && h.PatternSignature != pattern {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return float64(out[i].HitCount)*out[i].SuccessRate > float64(out[j].HitCount)*out[j].SuccessRate
	})
	return out
}

// Retire marks a heuristic inactive, e.g. once an operator judges it stale.
func (e *Engine) Retire(pattern string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.heuristics[pattern]; ok {
		h.Status = "retired"
		h.LastUpdated = e.clock()
		e.heuristics[pattern] = h
	}
}

// All returns a snapshot of every tracked heuristic, for the REST surface.
func (e *Engine) All() []model.OperationalHeuristic {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.OperationalHeuristic, 0, len(e.heuristics))
	for _, h := range e.heuristics {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatternSignature < out[j].PatternSignature })
	return out
}
