package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(secret, salt)
	key2 := DeriveKey(secret, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	secret := []byte("secret-password")

	if bytes.Equal(DeriveKey(secret, []byte("salt-1")), DeriveKey(secret, []byte("salt-2"))) {
		t.Errorf("expected different results for different salts, got same")
	}
}

type token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func TestSealOpen_RoundTrip(t *testing.T) {
	key := DeriveKey([]byte("k"), []byte("oauth-token"))
	in := token{AccessToken: "ya29.a0", RefreshToken: "1//0g"}

	sealed, err := Seal(in, key)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "ya29")

	var out token
	require.NoError(t, Open(sealed, key, &out))
	assert.Equal(t, in, out)
}

func TestSeal_FreshNonceEachTime(t *testing.T) {
	key := DeriveKey([]byte("k"), []byte("s"))

	a, err := Seal("same", key)
	require.NoError(t, err)
	b, err := Seal("same", key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_Failures(t *testing.T) {
	key := DeriveKey([]byte("k"), []byte("s"))
	other := DeriveKey([]byte("other"), []byte("s"))

	sealed, err := Seal(token{AccessToken: "x"}, key)
	require.NoError(t, err)

	var out token
	assert.Error(t, Open(sealed, other, &out), "wrong key must fail authentication")
	assert.ErrorIs(t, Open([]byte{1, 2}, key, &out), ErrSealedTooShort)
	assert.Error(t, Open(sealed, []byte("short"), &out), "invalid AES key size")
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(16)
	require.NoError(t, err)
	b, err := RandomHex(16)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
