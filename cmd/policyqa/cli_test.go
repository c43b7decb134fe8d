package main

import (
	"bytes"
	"strings"
	"testing"

	"policyqa-go/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		userID = ""
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCommands_Registered(t *testing.T) {
	for _, name := range []string{"ingest", "search", "ask", "token"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestSearchCmd_HasTopKFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("top-k")
	require.NotNil(t, flag)
	assert.Equal(t, "k", flag.Shorthand)
	assert.Equal(t, "0", flag.DefValue)
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	_, err := execute(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestIngestCmd_RequiresUser(t *testing.T) {
	_, err := execute(t, "ingest", "a.pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--user")
}

func TestSearchCmd_UnknownNamespace(t *testing.T) {
	_, err := execute(t, "search", "--memory", "--user", "nobody", "what is the leave policy?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "namespace not found")
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("POLICYQA_JWT_SECRET", "cli-secret")

	out, err := execute(t, "token", "--user", "alice")
	require.NoError(t, err)

	claims, err := token.NewJWTManager("cli-secret", 1).VerifyToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
}

func TestTokenCmd_NoSecret(t *testing.T) {
	_, err := execute(t, "token", "--user", "alice")
	assert.ErrorIs(t, err, errNoSecret)
}
