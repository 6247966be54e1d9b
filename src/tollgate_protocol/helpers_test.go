package tollgate_protocol

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"
)

const testMint = "https://mint.test.com"

func testKeys(t *testing.T) KeyPair {
	t.Helper()
	keys, err := GenerateKeyPair()
	require.NoError(t, err)
	return keys
}

func signedEvent(t *testing.T, keys KeyPair, kind int, tags nostr.Tags, content string) *nostr.Event {
	t.Helper()
	event := &nostr.Event{
		Kind:      kind,
		CreatedAt: nostr.Now(),
		Tags:      tags,
		Content:   content,
	}
	require.NoError(t, event.Sign(keys.PrivateKey))
	return event
}

func advertisementTags() nostr.Tags {
	return nostr.Tags{
		{"metric", "milliseconds"},
		{"step_size", "1000"},
		{"price_per_step", "cashu", "1", "sat", testMint, "60"},
		{"tips", "1", "2", "3"},
	}
}
