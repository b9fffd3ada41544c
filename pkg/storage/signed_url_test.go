package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, ticket, err := signer.Sign("exp-1", "comparisons/100_2024-01_2024-06.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := signer.Verify(token, false)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", got.ExportID)
	assert.Equal(t, "comparisons/100_2024-01_2024-06.csv", got.File)
	assert.True(t, ticket.ExpiresAt.Equal(got.ExpiresAt))
}

func TestVerifyExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Sign("exp-1", "a.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = signer.Verify(token, false)
	assert.ErrorIs(t, err, ErrTokenExpired)

	ticket, err := signer.Verify(token, true)
	require.NoError(t, err)
	assert.Equal(t, "a.csv", ticket.File)
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("exp-1", "a.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "exp-2"
	_, err = signer.Verify(strings.Join(parts, "."), false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewSignedURLSigner("other", time.Hour).Verify(token, false)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.Verify("garbage", false)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignRequiresSecret(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Sign("exp-1", "a.csv")
	assert.Error(t, err)
}
