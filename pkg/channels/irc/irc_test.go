package irc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripIdentTildeRemovesLeadingTilde(t *testing.T) {
	require.Equal(t, "bob", stripIdentTilde("~bob"))
	require.Equal(t, "bob", stripIdentTilde("bob"))
}

func TestNickFromSourceSplitsOnBang(t *testing.T) {
	require.Equal(t, "alice", nickFromSource("alice!alice@host.example"))
	require.Equal(t, "irc.example.net", nickFromSource("irc.example.net"))
}

func TestParseCTCPExtractsDelimitedCommand(t *testing.T) {
	cmd, ok := parseCTCP("\x01VERSION\x01")
	require.True(t, ok)
	require.Equal(t, "VERSION", cmd)

	cmd, ok = parseCTCP("\x01PING 12345\x01")
	require.True(t, ok)
	require.Equal(t, "PING 12345", cmd)

	_, ok = parseCTCP("not ctcp")
	require.False(t, ok)
}
