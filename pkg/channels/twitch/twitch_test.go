package twitch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zhiayang/ikura/pkg/perm"
)

func TestSplitMessageUnderLimitIsOneFrame(t *testing.T) {
	text := strings.Repeat("a", MaxMessageRunes)
	out := splitMessage(text, MaxMessageRunes)
	require.Len(t, out, 1)
}

func TestSplitMessageSplitsAtNearestSpace(t *testing.T) {
	text := strings.Repeat("a", MaxMessageRunes-5) + " " + strings.Repeat("b", 10)
	out := splitMessage(text, MaxMessageRunes)
	require.Len(t, out, 2)
	require.LessOrEqual(t, len([]rune(out[0])), MaxMessageRunes)
}

func TestSplitMessageExactlyTwoFramesFor1001Runes(t *testing.T) {
	text := strings.Repeat("a", 1001)
	out := splitMessage(text, MaxMessageRunes)
	require.Len(t, out, 2)
}

func TestGuardLeadingCommandChar(t *testing.T) {
	require.True(t, strings.HasPrefix(guardLeadingCommandChar("/me waves"), "⠀"))
	require.True(t, strings.HasPrefix(guardLeadingCommandChar(".timeout foo"), "⠀"))
	require.Equal(t, "hello", guardLeadingCommandChar("hello"))
}

func TestFlagsFromBadges(t *testing.T) {
	require.Equal(t, perm.FlagEveryone, flagsFromBadges(""))
	require.True(t, flagsFromBadges("moderator/1")&perm.FlagModerator != 0)
	require.True(t, flagsFromBadges("broadcaster/1")&perm.FlagBroadcaster != 0)
	require.True(t, flagsFromBadges("subscriber/12")&perm.FlagSubscriber != 0)
}

func TestLoginFromSource(t *testing.T) {
	require.Equal(t, "alice", loginFromSource("alice!alice@alice.tmi.twitch.tv"))
	require.Equal(t, "tmi.twitch.tv", loginFromSource("tmi.twitch.tv"))
}

func TestParseEmoteTagDecodesMultipleGroups(t *testing.T) {
	spans := parseEmoteTag("25:0-4,6-10/1902:12-13")
	require.Len(t, spans, 3)
	require.Equal(t, emoteSpan{id: "25", start: 0, end: 4}, spans[0])
	require.Equal(t, emoteSpan{id: "25", start: 6, end: 10}, spans[1])
	require.Equal(t, emoteSpan{id: "1902", start: 12, end: 13}, spans[2])
}

func TestParseEmoteTagEmptyYieldsNoSpans(t *testing.T) {
	require.Nil(t, parseEmoteTag(""))
}

func TestEmoteWordIndicesMapsRuneRangeToWordIndex(t *testing.T) {
	text := "Kappa hello Kappa world"
	spans := parseEmoteTag("25:0-4,13-17")
	indices := emoteWordIndices(text, spans)
	require.Equal(t, []int{0, 2}, indices)
}
