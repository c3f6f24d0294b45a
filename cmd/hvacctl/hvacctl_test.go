package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestPrompts(t *testing.T) {
	out := run(t, "", "prompts")
	assert.Contains(t, out, "How can I help you today?")
	assert.Contains(t, out, "full name")
}

func TestSimulate_GoodbyeEndsCall(t *testing.T) {
	out := run(t, "\ngoodbye\n", "simulate", "--no-llm")
	assert.Contains(t, out, "agent> Thanks for calling")
	assert.Contains(t, out, "didn't catch that")
	assert.Contains(t, out, "[hangs up]")
	assert.Contains(t, out, "outcome: completed")
}

func TestSimulate_EndOfInputAbandons(t *testing.T) {
	out := run(t, "I need a repair\n", "simulate", "--no-llm")
	assert.Contains(t, out, "full name")
	assert.Contains(t, out, "outcome: abandoned")
}

func TestToken(t *testing.T) {
	t.Setenv("HVAC_AGENT_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("HVAC_AGENT_AUTH_ISSUER", "hvac-agent")

	out := strings.TrimSpace(run(t, "", "token", "--subject", "dispatch"))

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(out, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte("s3cret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "dispatch", claims.Subject)
	assert.Equal(t, "hvac-agent", claims.Issuer)
}
