package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerify(t *testing.T) {
	m := NewJWTManager("s3cret", 1)
	tok, err := m.GenerateToken("alice")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "alice", claims.Subject)
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := NewJWTManager("a", 1).GenerateToken("alice")
	require.NoError(t, err)

	_, err = NewJWTManager("b", 1).VerifyToken(tok)
	assert.Error(t, err)
}

func TestVerify_Expired(t *testing.T) {
	m := NewJWTManager("s3cret", 0)
	tok, err := m.GenerateToken("alice")
	require.NoError(t, err)

	_, err = m.VerifyToken(tok)
	assert.Error(t, err)
}

func TestGenerate_EmptyUser(t *testing.T) {
	_, err := NewJWTManager("s3cret", 1).GenerateToken("")
	assert.Error(t, err)
}
