package tollwallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequiresMint(t *testing.T) {
	_, err := New(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	assert.True(t, contains([]string{"https://a", "https://b"}, "https://b"))
	assert.False(t, contains([]string{"https://a"}, "https://c"))
	assert.False(t, contains(nil, "https://a"))
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	w := &TollWallet{acceptedMints: []string{"https://mint.test.com"}}
	_, err := w.ParseToken("not-a-token")
	assert.Error(t, err)

	_, err = w.Receive("cashuBgarbage")
	assert.Error(t, err)
}

func TestForMintNormalizesURL(t *testing.T) {
	w := &TollWallet{acceptedMints: []string{"https://mint.test.com"}}
	h := w.ForMint("https://mint.test.com/")
	assert.Equal(t, "https://mint.test.com", h.MintURL())
}
