package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_DeriveForPurpose_Deterministic(t *testing.T) {
	kr := NewKeyringFromSeed([]byte("0123456789abcdef0123456789abcdef"))
	k1, err := kr.DeriveForPurpose("lineage-signing")
	require.NoError(t, err)
	k2, err := kr.DeriveForPurpose("lineage-signing")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := kr.DeriveForPurpose("artifact-provenance")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestKeyring_SignVerify_RoundTrip(t *testing.T) {
	kr := NewKeyringFromSeed([]byte("0123456789abcdef0123456789abcdef"))
	msg := []byte("esc_1|approved|ops-oncall|2026-01-01T00:00:00Z")

	sig, err := kr.Sign(PurposeEscalationResolution, msg)
	require.NoError(t, err)

	ok, err := kr.Verify(PurposeEscalationResolution, msg, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-deriving from the same seed verifies the same signature without
	// persisting a public key alongside it.
	kr2 := NewKeyringFromSeed([]byte("0123456789abcdef0123456789abcdef"))
	ok2, err := kr2.Verify(PurposeEscalationResolution, msg, sig)
	require.NoError(t, err)
	assert.True(t, ok2)
}

func TestKeyring_Verify_RejectsTamperedMessage(t *testing.T) {
	kr := NewKeyringFromSeed([]byte("0123456789abcdef0123456789abcdef"))
	sig, err := kr.Sign(PurposeEscalationResolution, []byte("esc_1|approved|ops-oncall|2026-01-01T00:00:00Z"))
	require.NoError(t, err)

	ok, err := kr.Verify(PurposeEscalationResolution, []byte("esc_1|denied|ops-oncall|2026-01-01T00:00:00Z"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyring_Sign_DifferentPurposesDiffer(t *testing.T) {
	kr := NewKeyringFromSeed([]byte("0123456789abcdef0123456789abcdef"))
	msg := []byte("same message")

	sig1, err := kr.Sign(PurposeEscalationResolution, msg)
	require.NoError(t, err)
	sig2, err := kr.Sign("lineage-signing", msg)
	require.NoError(t, err)
	assert.NotEqual(t, sig1, sig2)
}
