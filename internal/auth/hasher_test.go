package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	t.Parallel()

	h := NewBcryptHasher()

	digest, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, digest)
	assert.NotContains(t, digest, "correct horse", "digest must not embed the plaintext")

	assert.True(t, h.Verify("correct horse battery staple", digest))
	assert.False(t, h.Verify("correct horse battery stapl", digest))
	assert.False(t, h.Verify("", digest))
}

func TestBcryptHasher_SaltedDigestsDiffer(t *testing.T) {
	t.Parallel()

	h := NewBcryptHasher()

	d1, err := h.Hash("pw1")
	require.NoError(t, err)
	d2, err := h.Hash("pw1")
	require.NoError(t, err)

	assert.NotEqual(t, d1, d2, "salt must be random per digest")
	assert.True(t, h.Verify("pw1", d1))
	assert.True(t, h.Verify("pw1", d2))
}

func TestBcryptHasher_EmptyPassword(t *testing.T) {
	t.Parallel()

	h := NewBcryptHasher()

	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestBcryptHasher_MalformedDigest(t *testing.T) {
	t.Parallel()

	h := NewBcryptHasher()

	for _, digest := range []string{"", "not-a-digest", "$2a$broken", "$argon2id$v=19$..."} {
		assert.False(t, h.Verify("anything", digest), "malformed digest %q must verify false", digest)
	}
}
