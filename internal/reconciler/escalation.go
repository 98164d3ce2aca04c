package reconciler

import (
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gap-kernel/gap/internal/kernelerr"
	"github.com/gap-kernel/gap/internal/ledger"
	"github.com/gap-kernel/gap/internal/model"
	"github.com/google/uuid"
)

// Resolution is the operator's disposition of a pending escalation.
type Resolution string

const (
	ResolutionApproved       Resolution = "approved"
	ResolutionDenied         Resolution = "denied"
	ResolutionManualOverride Resolution = "manual_override"
)

// EscalationQueue holds human-pending EscalationDescriptors. Resolving one
// is the only mechanism that clears a circuit-broken entity's dampening
// state (Open Question (c)): a human, not the reconciler, must act.
type EscalationQueue struct {
	mu      sync.Mutex
	entries map[string]model.EscalationDescriptor

	// Keyring countersigns resolutions when configured. Nil skips signing
	// (Lite Mode posture: no LEDGER_SIGNING_SEED configured).
	Keyring *ledger.Keyring
}

// NewEscalationQueue returns an empty queue with no signing keyring. Set
// Keyring on the returned value to countersign resolutions.
func NewEscalationQueue() *EscalationQueue {
	return &EscalationQueue{entries: make(map[string]model.EscalationDescriptor)}
}

// Enqueue records a new pending escalation for an un-approved CGA cycle.
func (q *EscalationQueue) Enqueue(cycleID, lineageID, intentID, entityID, driftDescription string, proposalsTried int, rejectionReasons []string, now time.Time) model.EscalationDescriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := model.EscalationDescriptor{
		ID:               "esc_" + uuid.NewString(),
		CycleID:          cycleID,
		LineageID:        lineageID,
		IntentID:         intentID,
		EntityID:         entityID,
		DriftDescription: driftDescription,
		ProposalsTried:   proposalsTried,
		RejectionReasons: rejectionReasons,
		Status:           "pending",
		CreatedAt:        now,
	}
	q.entries[e.ID] = e
	return e
}

// Pending returns all unresolved escalations, oldest first.
func (q *EscalationQueue) Pending() []model.EscalationDescriptor {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.EscalationDescriptor
	for _, e := range q.entries {
		if e.Status == "pending" {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Get returns one escalation descriptor by id.
func (q *EscalationQueue) Get(id string) (model.EscalationDescriptor, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	return e, ok
}

// Resolve marks an escalation resolved by a named human resolver. Callers
// are expected to additionally clear the affected entity's circuit_broken
// flag (via Loop.ResolveEscalation) when resolution is approved or
// manual_override.
func (q *EscalationQueue) Resolve(id string, resolution Resolution, resolvedBy string, now time.Time) (model.EscalationDescriptor, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return model.EscalationDescriptor{}, fmt.Errorf("reconciler: escalation %s not found", id)
	}
	if e.Status == "resolved" {
		return e, nil
	}
	switch resolution {
	case ResolutionApproved, ResolutionDenied, ResolutionManualOverride:
	default:
		return model.EscalationDescriptor{}, &kernelerr.IntegrityFailureError{RecordID: id, Detail: "unknown resolution " + string(resolution)}
	}
	e.Status = "resolved"
	e.Resolution = string(resolution)
	e.ResolvedBy = resolvedBy
	resolvedAt := now
	e.ResolvedAt = &resolvedAt

	if q.Keyring != nil {
		sig, err := q.Keyring.Sign(ledger.PurposeEscalationResolution, resolutionSigningPayload(e))
		if err != nil {
			return model.EscalationDescriptor{}, fmt.Errorf("reconciler: countersign resolution %s: %w", id, err)
		}
		e.ResolutionSignature = hex.EncodeToString(sig)
	}

	q.entries[id] = e
	return e, nil
}

// VerifyResolution re-derives the escalation-resolution keypair and checks
// a resolved descriptor's ResolutionSignature against its fields, so an
// auditor can confirm the recorded resolution was countersigned and has not
// been altered since.
func (q *EscalationQueue) VerifyResolution(e model.EscalationDescriptor) (bool, error) {
	if q.Keyring == nil {
		return false, fmt.Errorf("reconciler: no keyring configured, cannot verify")
	}
	if e.ResolutionSignature == "" {
		return false, nil
	}
	sig, err := hex.DecodeString(e.ResolutionSignature)
	if err != nil {
		return false, fmt.Errorf("reconciler: decode resolution signature: %w", err)
	}
	return q.Keyring.Verify(ledger.PurposeEscalationResolution, resolutionSigningPayload(e), sig)
}

// resolutionSigningPayload builds the deterministic byte message countersigned
// over a resolved escalation: id, resolution, resolver and resolution time.
func resolutionSigningPayload(e model.EscalationDescriptor) []byte {
	var resolvedAt string
	if e.ResolvedAt != nil {
		resolvedAt = e.ResolvedAt.UTC().Format(time.RFC3339Nano)
	}
	return []byte(fmt.Sprintf("%s|%s|%s|%s", e.ID, e.Resolution, e.ResolvedBy, resolvedAt))
}
