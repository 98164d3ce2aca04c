package reconciler

import (
	"testing"
	"time"

	"github.com/gap-kernel/gap/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscalationQueue_Resolve_NoKeyringLeavesSignatureEmpty(t *testing.T) {
	q := NewEscalationQueue()
	e := q.Enqueue("cycle_1", "lin_1", "intent_1", "lead_1", "no_response_within_sla", 2, nil, time.Now())

	resolved, err := q.Resolve(e.ID, ResolutionApproved, "ops-oncall", time.Now())
	require.NoError(t, err)
	assert.Empty(t, resolved.ResolutionSignature)
}

func TestEscalationQueue_Resolve_WithKeyringCountersigns(t *testing.T) {
	q := NewEscalationQueue()
	q.Keyring = ledger.NewKeyringFromSeed([]byte("0123456789abcdef0123456789abcdef"))

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := q.Enqueue("cycle_1", "lin_1", "intent_1", "lead_1", "no_response_within_sla", 2, nil, now)

	resolved, err := q.Resolve(e.ID, ResolutionApproved, "ops-oncall", now)
	require.NoError(t, err)
	require.NotEmpty(t, resolved.ResolutionSignature)

	ok, err := q.VerifyResolution(resolved)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEscalationQueue_VerifyResolution_DetectsTampering(t *testing.T) {
	q := NewEscalationQueue()
	q.Keyring = ledger.NewKeyringFromSeed([]byte("0123456789abcdef0123456789abcdef"))

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	e := q.Enqueue("cycle_1", "lin_1", "intent_1", "lead_1", "no_response_within_sla", 2, nil, now)

	resolved, err := q.Resolve(e.ID, ResolutionApproved, "ops-oncall", now)
	require.NoError(t, err)

	tampered := resolved
	tampered.Resolution = string(ResolutionDenied)
	ok, err := q.VerifyResolution(tampered)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEscalationQueue_VerifyResolution_NoKeyringErrors(t *testing.T) {
	q := NewEscalationQueue()
	now := time.Now()
	e := q.Enqueue("cycle_1", "lin_1", "intent_1", "lead_1", "no_response_within_sla", 2, nil, now)
	resolved, err := q.Resolve(e.ID, ResolutionApproved, "ops-oncall", now)
	require.NoError(t, err)

	_, err = q.VerifyResolution(resolved)
	assert.Error(t, err)
}
