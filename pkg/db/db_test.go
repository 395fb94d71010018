package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhiayang/ikura/pkg/dispatch"
	"github.com/zhiayang/ikura/pkg/lang/eval"
	"github.com/zhiayang/ikura/pkg/markov"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/registry"
	"github.com/zhiayang/ikura/pkg/value"
)

func newTestDB(t *testing.T) (*Database, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ikura.db")
	reg := registry.New()
	mk := markov.NewEngine(1, 2)
	d := New(path, reg, mk, false)
	return d, path
}

func newDBTestCtx(r *registry.Registry) *eval.Context {
	return eval.NewContext(r, "u1", "alice", model.ChannelRef{Backend: model.BackendTwitch, ID: "c1"},
		nil, "", time.Now())
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	d, _ := newTestDB(t)
	require.NoError(t, d.Load())
	_, ok := d.Channel(model.ChannelRef{Backend: model.BackendTwitch, ID: "chan"})
	require.False(t, ok)
}

func TestUpsertAndLookupChannelAndUser(t *testing.T) {
	d, _ := newTestDB(t)

	ch := &model.Channel{Backend: model.BackendTwitch, ID: "c1", Name: "c1", CommandPrefixes: []string{"!"}}
	d.UpsertChannel(ch)
	got, ok := d.Channel(model.ChannelRef{Backend: model.BackendTwitch, ID: "c1"})
	require.True(t, ok)
	require.Equal(t, "c1", got.Name)

	u := d.GetOrCreateUser(model.UserRef{Backend: model.BackendTwitch, ID: "u1"}, "alice")
	require.Equal(t, "alice", u.DisplayName)
	same := d.GetOrCreateUser(model.UserRef{Backend: model.BackendTwitch, ID: "u1"}, "ignored")
	require.Equal(t, "alice", same.DisplayName)
}

func TestGroupMembershipInvariant(t *testing.T) {
	d, _ := newTestDB(t)
	ref := model.UserRef{Backend: model.BackendTwitch, ID: "u1"}
	d.GetOrCreateUser(ref, "alice")

	g := d.CreateGroup("mods")
	require.NoError(t, d.AddUserToGroup(ref, g.ID))

	u, _ := d.User(ref)
	require.Contains(t, u.Groups, g.ID)

	g2, _ := d.Group(g.ID)
	require.Contains(t, g2.Members, ref)

	d.RemoveUserFromGroup(ref, g.ID)
	u, _ = d.User(ref)
	require.NotContains(t, u.Groups, g.ID)
	g2, _ = d.Group(g.ID)
	require.NotContains(t, g2.Members, ref)
}

func TestPersistLogEntryAndRecentMessages(t *testing.T) {
	d, _ := newTestDB(t)
	ch := model.ChannelRef{Backend: model.BackendTwitch, ID: "c1"}

	d.PersistLogEntry(dispatch.LogEntry{UserID: "u1", Channel: ch, Words: []string{"hello", "world"}})
	d.PersistLogEntry(dispatch.LogEntry{UserID: "u1", Channel: ch, Words: []string{"second", "message"}})

	recent := d.RecentMessages(ch, 10)
	require.Equal(t, []string{"hello world", "second message"}, recent)
}

func TestSyncAndLoadRoundTrips(t *testing.T) {
	d, path := newTestDB(t)
	require.NoError(t, d.Load())

	ch := &model.Channel{Backend: model.BackendTwitch, ID: "c1", Name: "c1", CommandPrefixes: []string{"!"}, Lurk: true}
	d.UpsertChannel(ch)
	ref := model.UserRef{Backend: model.BackendTwitch, ID: "u1"}
	d.GetOrCreateUser(ref, "alice")
	g := d.CreateGroup("mods")
	require.NoError(t, d.AddUserToGroup(ref, g.ID))

	_, _, err := d.Registry.RunBuiltinCommand(newDBTestCtx(d.Registry), "def", "greet hi")
	require.NoError(t, err)
	d.Registry.SetGlobal("answer", value.NewInt(7))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Markov.Run(ctx)
	for i := 0; i < 50; i++ {
		d.Markov.Ingest("the quick brown fox jumps", nil)
	}
	require.Eventually(t, func() bool { return d.Markov.Table.Len() > 0 }, time.Second, 5*time.Millisecond)

	chRef := model.ChannelRef{Backend: model.BackendTwitch, ID: "c1"}
	d.PersistLogEntry(dispatch.LogEntry{UserID: "u1", Channel: chRef, Words: []string{"hi", "there"}})

	require.NoError(t, d.Sync())

	reg2 := registry.New()
	mk2 := markov.NewEngine(2, 2)
	d2 := New(path, reg2, mk2, false)
	require.NoError(t, d2.Load())

	got, ok := d2.Channel(model.ChannelRef{Backend: model.BackendTwitch, ID: "c1"})
	require.True(t, ok)
	require.True(t, got.Lurk)

	u, ok := d2.User(ref)
	require.True(t, ok)
	require.Contains(t, u.Groups, g.ID)

	g2, ok := d2.Group(g.ID)
	require.True(t, ok)
	require.Equal(t, "mods", g2.Name)

	_, ok = reg2.LookupCommand("greet")
	require.True(t, ok)
	gv, ok := reg2.Global("answer")
	require.True(t, ok)
	require.EqualValues(t, 7, gv.AsInt())

	require.Greater(t, mk2.Table.Len(), 0)
	require.Equal(t, []string{"hi there"}, d2.RecentMessages(chRef, 10))
}

func TestReadOnlyDatabaseNeverWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ikura.db")
	reg := registry.New()
	mk := markov.NewEngine(1, 2)
	d := New(path, reg, mk, true)
	require.NoError(t, d.Load())
	d.UpsertChannel(&model.Channel{Backend: model.BackendTwitch, ID: "c1"})
	require.NoError(t, d.Sync())
	require.NoFileExists(t, path)
}
