package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIgnoresMapOrder(t *testing.T) {
	a, err := Fingerprint(map[string]any{"person": "alice", "related": []any{"bob"}})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"related": []any{"bob"}, "person": "alice"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}

func TestFingerprintDistinguishesValues(t *testing.T) {
	a, err := Fingerprint(map[string]any{"related": []any{"bob", "carol"}})
	require.NoError(t, err)
	b, err := Fingerprint(map[string]any{"related": "bob|carol"})
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestFingerprintUnencodable(t *testing.T) {
	_, err := Fingerprint(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}
