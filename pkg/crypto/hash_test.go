package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chainPayload struct {
	ID           string                 `json:"id"`
	Action       string                 `json:"action"`
	Details      map[string]interface{} `json:"details,omitempty"`
	PreviousHash string                 `json:"previousHash"`
}

func TestChainDigest_Deterministic(t *testing.T) {
	payload := chainPayload{
		ID:           "AUD-1",
		Action:       "transaction_income",
		Details:      map[string]interface{}{"amount": 125.5, "source": "test"},
		PreviousHash: "",
	}

	first, err := ChainDigest(payload)
	require.NoError(t, err)
	assert.Len(t, first, DigestSize)

	// Same payload always produces the same digest
	for i := 0; i < 10; i++ {
		again, err := ChainDigest(payload)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestChainDigest_SensitiveToEveryField(t *testing.T) {
	base := chainPayload{
		ID:           "AUD-1",
		Action:       "decision",
		Details:      map[string]interface{}{"reason": "budget"},
		PreviousHash: "abc",
	}
	baseDigest, err := ChainDigest(base)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(p chainPayload) chainPayload
	}{
		{
			name: "id changed",
			mutate: func(p chainPayload) chainPayload {
				p.ID = "AUD-2"
				return p
			},
		},
		{
			name: "action changed",
			mutate: func(p chainPayload) chainPayload {
				p.Action = "decision_revised"
				return p
			},
		},
		{
			name: "details changed",
			mutate: func(p chainPayload) chainPayload {
				p.Details = map[string]interface{}{"reason": "performance"}
				return p
			},
		},
		{
			name: "previous hash changed",
			mutate: func(p chainPayload) chainPayload {
				p.PreviousHash = "abd"
				return p
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			digest, err := ChainDigest(tt.mutate(base))
			require.NoError(t, err)
			assert.NotEqual(t, baseDigest, digest)
		})
	}
}

func TestChainDigest_MapKeyOrderIndependent(t *testing.T) {
	a := chainPayload{
		ID:      "AUD-1",
		Action:  "system_event",
		Details: map[string]interface{}{"alpha": 1.0, "beta": 2.0, "gamma": 3.0},
	}
	b := chainPayload{
		ID:      "AUD-1",
		Action:  "system_event",
		Details: map[string]interface{}{"gamma": 3.0, "beta": 2.0, "alpha": 1.0},
	}

	da, err := ChainDigest(a)
	require.NoError(t, err)
	db, err := ChainDigest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}

func TestChainDigest_NotEncodable(t *testing.T) {
	_, err := ChainDigest(map[string]interface{}{"ch": make(chan int)})
	assert.ErrorIs(t, err, ErrPayloadNotEncodable)
}

func TestDigestEqual(t *testing.T) {
	digest, err := ChainDigest(chainPayload{ID: "AUD-1"})
	require.NoError(t, err)

	assert.True(t, DigestEqual(digest, digest))
	assert.False(t, DigestEqual(digest, digest[:DigestSize-1]))
	assert.False(t, DigestEqual("", ""))

	other, err := ChainDigest(chainPayload{ID: "AUD-2"})
	require.NoError(t, err)
	assert.False(t, DigestEqual(digest, other))
}

func BenchmarkChainDigest(b *testing.B) {
	payload := chainPayload{
		ID:           "AUD-1755938000000-42",
		Action:       "transaction_expense",
		Details:      map[string]interface{}{"amount": 99.95, "entity": "ent-7"},
		PreviousHash: "3a7bd3e2360a3d29eea436fcfb7e44c735d117c42d1c1835420b6b9942dd4f1b",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = ChainDigest(payload)
	}
}
