package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("ds-1", "datesheets/ds-1.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	download, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "ds-1", download.ResourceID)
	require.Equal(t, "datesheets/ds-1.pdf", download.Path)
	require.WithinDuration(t, expiresAt, download.ExpiresAt, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("ds-1", "datesheets/ds-1.csv")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err = signer.Parse(token, false)
	require.ErrorIs(t, err, ErrTokenExpired)

	download, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "datesheets/ds-1.csv", download.Path)
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Generate("ds-1", "datesheets/ds-1.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "ds-2"
	_, err = signer.Parse(strings.Join(parts, "."), false)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewSignedURLSigner("other", time.Hour).Parse(token, false)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = signer.Generate("a.b", "x.csv")
	require.ErrorIs(t, err, ErrInvalidToken)
}
