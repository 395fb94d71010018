package perm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lookups(groups map[string]GroupID, roles map[string]RoleID) (func(string) (GroupID, bool), func(string) (RoleID, bool)) {
	return func(n string) (GroupID, bool) { g, ok := groups[n]; return g, ok },
		func(n string) (RoleID, bool) { r, ok := roles[n]; return r, ok }
}

func TestCheckOwnerAlwaysPasses(t *testing.T) {
	p := New(FlagModerator)
	require.True(t, p.Check(Identity{Flags: FlagOwner}))
}

func TestCheckOwnerBlacklisted(t *testing.T) {
	p := New(FlagModerator)
	p.GroupBlacklist[1] = struct{}{}
	require.False(t, p.Check(Identity{Flags: FlagOwner, Groups: []GroupID{1}}))
}

func TestCheckZeroFlagIsOwnerOnly(t *testing.T) {
	p := New(0)
	require.False(t, p.Check(Identity{Flags: FlagModerator}))
	require.True(t, p.Check(Identity{Flags: FlagOwner}))
}

func TestCheckFlagMatchPassesUnlessBlacklisted(t *testing.T) {
	p := New(FlagModerator)
	require.True(t, p.Check(Identity{Flags: FlagModerator}))

	p.GroupBlacklist[2] = struct{}{}
	require.False(t, p.Check(Identity{Flags: FlagModerator, Groups: []GroupID{2}}))
}

func TestCheckFallsBackToWhitelist(t *testing.T) {
	p := New(FlagModerator)
	p.GroupWhitelist[5] = struct{}{}
	require.False(t, p.Check(Identity{Flags: FlagEveryone}))
	require.True(t, p.Check(Identity{Flags: FlagEveryone, Groups: []GroupID{5}}))
}

func TestCheckRoleWhitelist(t *testing.T) {
	p := New(FlagModerator)
	p.RoleWhitelist[99] = struct{}{}
	require.True(t, p.Check(Identity{Flags: FlagEveryone, Roles: []RoleID{99}}))
}

func TestApplySpecReplacesFlagsByDefault(t *testing.T) {
	p := New(FlagModerator)
	gl, rl := lookups(nil, nil)
	require.NoError(t, ApplySpec(&p, "20", gl, rl))
	require.Equal(t, FlagBroadcaster, p.Flags)
}

func TestApplySpecMergesWithLeadingPlus(t *testing.T) {
	p := New(FlagModerator)
	gl, rl := lookups(nil, nil)
	require.NoError(t, ApplySpec(&p, "+20", gl, rl))
	require.Equal(t, FlagModerator|FlagBroadcaster, p.Flags)
}

func TestApplySpecGroupWhitelistAndBlacklist(t *testing.T) {
	p := New(FlagModerator)
	gl, rl := lookups(map[string]GroupID{"mods": 1, "banned": 2}, nil)

	require.NoError(t, ApplySpec(&p, "+mods-banned", gl, rl))
	_, wlOK := p.GroupWhitelist[1]
	_, blOK := p.GroupBlacklist[2]
	require.True(t, wlOK)
	require.True(t, blOK)
}

func TestApplySpecStarRemovesFromBothLists(t *testing.T) {
	p := New(FlagModerator)
	gl, rl := lookups(map[string]GroupID{"mods": 1}, nil)
	require.NoError(t, ApplySpec(&p, "+mods", gl, rl))
	require.NoError(t, ApplySpec(&p, "*mods", gl, rl))
	_, wlOK := p.GroupWhitelist[1]
	_, blOK := p.GroupBlacklist[1]
	require.False(t, wlOK)
	require.False(t, blOK)
}

func TestApplySpecDiscordRole(t *testing.T) {
	p := New(FlagModerator)
	gl, rl := lookups(nil, map[string]RoleID{"admin": 42})
	require.NoError(t, ApplySpec(&p, "+%admin", gl, rl))
	_, ok := p.RoleWhitelist[42]
	require.True(t, ok)
}

func TestApplySpecUnknownGroupErrors(t *testing.T) {
	p := New(FlagModerator)
	gl, rl := lookups(nil, nil)
	require.Error(t, ApplySpec(&p, "+ghost", gl, rl))
}

func TestApplySpecEscapedOperatorInName(t *testing.T) {
	p := New(FlagModerator)
	gl, rl := lookups(map[string]GroupID{"a+b": 7}, nil)
	require.NoError(t, ApplySpec(&p, `+a\+b`, gl, rl))
	_, ok := p.GroupWhitelist[7]
	require.True(t, ok)
}

func TestApplyGroupSpecsLeavesFlagsUntouched(t *testing.T) {
	p := New(FlagModerator)
	gl, rl := lookups(map[string]GroupID{"mods": 1}, nil)
	require.NoError(t, ApplyGroupSpecs(&p, "+mods", gl, rl))
	require.Equal(t, FlagModerator, p.Flags)
	_, ok := p.GroupWhitelist[1]
	require.True(t, ok)
}
