package otp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	before := time.Now()
	code, expiresAt, err := Generate(5 * time.Minute)
	require.NoError(t, err)

	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9', "code %q contains non-digit %q", code, r)
	}

	assert.WithinDuration(t, before.Add(5*time.Minute), expiresAt, 2*time.Second)
}

func TestExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, Expired(nil, now))
	assert.True(t, Expired(&past, now))
	assert.False(t, Expired(&future, now))
}
