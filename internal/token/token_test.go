package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/claimdesk/claimdesk/internal/token"
)

func TestNewIsUniqueAndOpaque(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := token.New()
		assert.Len(t, tok, 64, "32 random bytes, hex encoded")
		assert.False(t, seen[tok], "tokens must not repeat")
		seen[tok] = true
	}
}

func TestVerify(t *testing.T) {
	tok := token.New()
	assert.True(t, token.Verify(tok, tok))
	assert.False(t, token.Verify(tok, token.New()))
	assert.False(t, token.Verify(tok, tok+"x"))
	assert.False(t, token.Verify(tok, ""))
	assert.False(t, token.Verify("", tok))
	assert.False(t, token.Verify("", ""))
}
