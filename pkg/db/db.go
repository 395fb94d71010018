package db

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zhiayang/ikura/pkg/codec"
	"github.com/zhiayang/ikura/pkg/dispatch"
	"github.com/zhiayang/ikura/pkg/fileutil"
	"github.com/zhiayang/ikura/pkg/logger"
	"github.com/zhiayang/ikura/pkg/markov"
	"github.com/zhiayang/ikura/pkg/model"
	"github.com/zhiayang/ikura/pkg/perm"
	"github.com/zhiayang/ikura/pkg/registry"
)

// SyncInterval is how often the background worker rewrites the file
// when dirty (spec.md §4.2: "a background worker serialises the whole
// database on a timer").
const SyncInterval = 30 * time.Second

// filePerm is the mode WriteFileAtomic installs on the database file;
// it may contain oauth tokens indirectly via config, so it's kept
// owner-only like the original's db.dat.
const filePerm = 0o600

// Database is the single in-memory aggregate of everything spec.md
// §4.2 names as persistent: per-backend users/channels, cross-backend
// groups, the command registry's state, the Markov engine's tables,
// and the message log. All mutators go through the exported methods so
// the dirty flag and lock discipline stay centralised.
//
// Grounded on pkg/fileutil.WriteFileAtomic's temp-file-then-rename
// write-out and on the teacher's config.Load for the
// read-whole-file-then-parse shape; the section framing itself follows
// spec.md §4.2's superblock + ordered-sections description.
type Database struct {
	mu       sync.RWMutex
	path     string
	readOnly bool
	dirty    bool
	version  uint32

	groups      map[perm.GroupID]*model.Group
	nextGroupID perm.GroupID

	twitch  *backendData
	discord *backendData
	irc     *backendData

	Registry *registry.Registry
	Markov   *markov.Engine
	Log      *MessageLog

	stop chan struct{}
	wg   sync.WaitGroup
}

// New builds an empty Database bound to path. reg and mk are the
// already-constructed registry/markov engine this process is using;
// Load populates them in place via Registry.Import/Markov's
// Words.Import/Table.Import rather than replacing the pointers, since
// pkg/dispatch and pkg/registry's builtin wiring already hold
// references to them.
func New(path string, reg *registry.Registry, mk *markov.Engine, readOnly bool) *Database {
	return &Database{
		path:     path,
		readOnly: readOnly,
		version:  CurrentVersion,
		groups:   map[perm.GroupID]*model.Group{},
		twitch:   newBackendData(),
		discord:  newBackendData(),
		irc:      newBackendData(),
		Registry: reg,
		Markov:   mk,
		Log:      NewMessageLog(),
		stop:     make(chan struct{}),
	}
}

func (d *Database) backend(b model.Backend) *backendData {
	switch b {
	case model.BackendTwitch:
		return d.twitch
	case model.BackendDiscord:
		return d.discord
	case model.BackendIRC:
		return d.irc
	default:
		return d.twitch
	}
}

// writeLocked marks the database dirty as soon as the write lock is
// acquired (spec.md §4.2: "a dirty flag is set whenever the write lock
// is acquired," not only when a mutation actually changes something),
// then runs fn under that lock. Read-only databases never set dirty
// and never persist, but the in-memory mutation still succeeds so a
// read-only console session can still inspect a hypothetical edit.
func (d *Database) writeLocked(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.readOnly {
		d.dirty = true
	}
	fn()
}

// --- channel state ---

// UpsertChannel inserts or replaces a channel record.
func (d *Database) UpsertChannel(ch *model.Channel) {
	d.writeLocked(func() {
		d.backend(ch.Backend).Channels[ch.ID] = ch
	})
}

// Channel looks up a channel by backend and id.
func (d *Database) Channel(ref model.ChannelRef) (*model.Channel, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.backend(ref.Backend).Channels[ref.ID]
	return ch, ok
}

// --- user state ---

// UpsertUser inserts or replaces a user record. Users are created
// lazily on first observation and never deleted (spec.md §3's
// invariant); no Database method removes a user.
func (d *Database) UpsertUser(u *model.User) {
	d.writeLocked(func() {
		d.backend(u.Backend).Users[u.ID] = u
	})
}

// User looks up a user by backend and id.
func (d *Database) User(ref model.UserRef) (*model.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.backend(ref.Backend).Users[ref.ID]
	return u, ok
}

// SetUserFlags overwrites a user's permission flag mask, used by a
// backend driver that just observed authoritative badge/role
// information (e.g. Twitch USERSTATE, Discord member roles). Satisfies
// pkg/channels.UserStore.
func (d *Database) SetUserFlags(ref model.UserRef, flags perm.Flag) {
	d.writeLocked(func() {
		if u, ok := d.backend(ref.Backend).Users[ref.ID]; ok {
			u.Flags = flags
		}
	})
}

// SetUserRoles overwrites a Discord user's role-membership list, used
// by the Discord driver on GUILD_MEMBER_UPDATE / message-author
// snapshots. Satisfies pkg/channels.UserStore; a no-op on backends that
// never call it.
func (d *Database) SetUserRoles(ref model.UserRef, roles []model.RoleID) {
	d.writeLocked(func() {
		if u, ok := d.backend(ref.Backend).Users[ref.ID]; ok {
			u.Roles = roles
		}
	})
}

// GetOrCreateUser returns the existing user record for ref, or creates
// an empty one with displayName if this is the first observation.
func (d *Database) GetOrCreateUser(ref model.UserRef, displayName string) *model.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.readOnly {
		d.dirty = true
	}
	bd := d.backend(ref.Backend)
	if u, ok := bd.Users[ref.ID]; ok {
		return u
	}
	u := &model.User{Backend: ref.Backend, ID: ref.ID, DisplayName: displayName}
	bd.Users[ref.ID] = u
	return u
}

// --- groups ---

// CreateGroup allocates a new cross-backend group (spec.md §3).
func (d *Database) CreateGroup(name string) *model.Group {
	var g *model.Group
	d.writeLocked(func() {
		d.nextGroupID++
		g = &model.Group{ID: d.nextGroupID, Name: name}
		d.groups[g.ID] = g
	})
	return g
}

// Group looks up a group by id.
func (d *Database) Group(id perm.GroupID) (*model.Group, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[id]
	return g, ok
}

// GroupByName resolves a group by its display name; this is the
// function pkg/registry.Registry.GroupLookup is wired to at startup.
func (d *Database) GroupByName(name string) (perm.GroupID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, g := range d.groups {
		if g.Name == name {
			return g.ID, true
		}
	}
	return 0, false
}

// AddUserToGroup maintains spec.md §3's bidirectional invariant
// (`U.groups contains G.id ⇔ G.members contains (U.backend, U.id)`) in
// both the user record and the group record in one locked step.
func (d *Database) AddUserToGroup(ref model.UserRef, gid perm.GroupID) error {
	var err error
	d.writeLocked(func() {
		g, ok := d.groups[gid]
		if !ok {
			err = fmt.Errorf("db: no such group %d", gid)
			return
		}
		u, ok := d.backend(ref.Backend).Users[ref.ID]
		if !ok {
			err = fmt.Errorf("db: no such user %s/%s", ref.Backend, ref.ID)
			return
		}
		for _, existing := range u.Groups {
			if existing == gid {
				return
			}
		}
		u.Groups = append(u.Groups, gid)
		g.Members = append(g.Members, ref)
	})
	return err
}

// RemoveUserFromGroup is AddUserToGroup's inverse.
func (d *Database) RemoveUserFromGroup(ref model.UserRef, gid perm.GroupID) {
	d.writeLocked(func() {
		if g, ok := d.groups[gid]; ok {
			for i, m := range g.Members {
				if m == ref {
					g.Members = append(g.Members[:i], g.Members[i+1:]...)
					break
				}
			}
		}
		if u, ok := d.backend(ref.Backend).Users[ref.ID]; ok {
			for i, existing := range u.Groups {
				if existing == gid {
					u.Groups = append(u.Groups[:i], u.Groups[i+1:]...)
					break
				}
			}
		}
	})
}

// --- message log ---

// PersistLogEntry records e, the function wired to
// pkg/dispatch.Dispatcher.Persist.
func (d *Database) PersistLogEntry(e dispatch.LogEntry) {
	d.Log.Append(e)
	d.writeLocked(func() {})
}

// RecentMessages delegates to the message log (SPEC_FULL.md §9's query
// surface).
func (d *Database) RecentMessages(channel model.ChannelRef, n int) []string {
	return d.Log.RecentMessages(channel, n)
}

// --- persistence ---

// Load reads path (if it exists) and populates the database in place.
// A missing file is not an error: New already leaves the database in
// a valid empty state, matching a first-run experience.
func (d *Database) Load() error {
	raw, err := os.ReadFile(d.path)
	if os.IsNotExist(err) {
		logger.InfoC("db", "no existing database file, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("db: reading %s: %w", d.path, err)
	}

	r := codec.NewReader(raw)

	magic, err := r.ReadString()
	if err != nil {
		return fmt.Errorf("db: reading superblock magic: %w", err)
	}
	if magic != Magic {
		return ErrBadMagic
	}

	version, err := r.ReadU64()
	if err != nil {
		return fmt.Errorf("db: reading superblock version: %w", err)
	}
	if uint32(version) > CurrentVersion {
		return ErrVersionTooNew
	}
	if _, err := r.ReadU64(); err != nil { // flags
		return fmt.Errorf("db: reading superblock flags: %w", err)
	}
	if _, err := r.ReadU64(); err != nil { // last-modified-ms
		return fmt.Errorf("db: reading superblock timestamp: %w", err)
	}

	if version < uint64(CurrentVersion) {
		if err := d.backupBeforeUpgrade(uint32(version)); err != nil {
			logger.WarnCF("db", "failed to write pre-upgrade backup", map[string]any{"error": err.Error()})
		}
	}

	twitch, err := decodeBackendData(r, model.BackendTwitch)
	if err != nil {
		return fmt.Errorf("db: decoding twitch-data: %w", err)
	}

	snap, err := decodeInterpreterState(r)
	if err != nil {
		return fmt.Errorf("db: decoding interpreter-state: %w", err)
	}

	words, edges, err := decodeMarkovData(r)
	if err != nil {
		return fmt.Errorf("db: decoding markov-data: %w", err)
	}

	groups, err := decodeSharedData(r)
	if err != nil {
		return fmt.Errorf("db: decoding shared-data: %w", err)
	}

	discord := newBackendData()
	if uint32(version) >= DiscordDataMinVersion {
		if discord, err = decodeBackendData(r, model.BackendDiscord); err != nil {
			return fmt.Errorf("db: decoding discord-data: %w", err)
		}
	}

	irc := newBackendData()
	if uint32(version) >= IRCDataMinVersion {
		if irc, err = decodeBackendData(r, model.BackendIRC); err != nil {
			return fmt.Errorf("db: decoding irc-data: %w", err)
		}
	}

	msglog, err := decodeMessageLog(r)
	if err != nil {
		return fmt.Errorf("db: decoding message-data: %w", err)
	}

	d.mu.Lock()
	d.twitch, d.discord, d.irc = twitch, discord, irc
	d.groups = groups
	var maxGID perm.GroupID
	for gid := range groups {
		if gid > maxGID {
			maxGID = gid
		}
	}
	d.nextGroupID = maxGID
	d.Log = msglog
	d.version = CurrentVersion
	d.mu.Unlock()

	d.Registry.Import(snap)
	d.Markov.Words.Import(words)
	d.Markov.Table.Import(edges)

	logger.InfoCF("db", "loaded database", map[string]any{
		"on_disk_version": version, "channels": len(twitch.Channels) + len(discord.Channels) + len(irc.Channels),
	})
	return nil
}

func (d *Database) backupBeforeUpgrade(onDiskVersion uint32) error {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		return err
	}
	backupPath := fmt.Sprintf("%s-backup-v%d.db", d.path, onDiskVersion)
	return fileutil.WriteFileAtomic(backupPath, raw, filePerm)
}

// Sync serialises the full database and atomically rewrites path. A
// read-only database never writes.
func (d *Database) Sync() error {
	if d.readOnly {
		return nil
	}

	d.mu.Lock()
	w := codec.NewWriter()
	w.WriteString(Magic)
	w.WriteU64(uint64(CurrentVersion))
	w.WriteU64(0)
	w.WriteU64(uint64(time.Now().UnixMilli()))

	encodeBackendData(w, d.twitch)
	encodeInterpreterState(w, d.Registry.Export())
	encodeMarkovData(w, d.Markov.Words.Export(), d.Markov.Table.Export())
	encodeSharedData(w, d.groups)
	encodeBackendData(w, d.discord)
	encodeBackendData(w, d.irc)
	encodeMessageLog(w, d.Log)

	d.dirty = false
	d.mu.Unlock()

	if err := fileutil.WriteFileAtomic(d.path, w.Bytes(), filePerm); err != nil {
		d.mu.Lock()
		d.dirty = true
		d.mu.Unlock()
		return fmt.Errorf("db: writing %s: %w", d.path, err)
	}
	return nil
}

// Run starts the background sync worker, rewriting the file every
// SyncInterval while dirty, until Stop is called. A read-only database
// runs no background thread at all (spec.md §4.2: "a read-only mode
// suppresses both the dirty flag and the background thread").
func (d *Database) Run() {
	if d.readOnly {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.mu.RLock()
				dirty := d.dirty
				d.mu.RUnlock()
				if !dirty {
					continue
				}
				if err := d.Sync(); err != nil {
					logger.ErrorCF("db", "background sync failed", map[string]any{"error": err.Error()})
				}
			case <-d.stop:
				return
			}
		}
	}()
}

// Stop halts the background worker and performs one final sync if
// dirty.
func (d *Database) Stop() {
	if d.readOnly {
		return
	}
	close(d.stop)
	d.wg.Wait()
	d.mu.RLock()
	dirty := d.dirty
	d.mu.RUnlock()
	if dirty {
		if err := d.Sync(); err != nil {
			logger.ErrorCF("db", "final sync on shutdown failed", map[string]any{"error": err.Error()})
		}
	}
}
