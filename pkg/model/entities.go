package model

import "github.com/zhiayang/ikura/pkg/perm"

// Channel is the abstract per-channel record spec.md §3 describes:
// command prefixes, and the four behavior flags the dispatcher and
// console consult (lurk, respond-to-pings, silent-errors,
// run-message-handlers i.e. Markov training).
type Channel struct {
	Backend Backend
	ID      string
	Name    string

	CommandPrefixes []string

	Lurk              bool
	RespondToPings    bool
	SilentErrors      bool
	RunMessageHandlers bool
}

// HasPrefix reports whether text begins with one of the channel's
// configured command prefixes, returning the text with that prefix
// stripped.
func (c *Channel) HasPrefix(text string) (rest string, ok bool) {
	for _, p := range c.CommandPrefixes {
		if p == "" {
			continue
		}
		if len(text) >= len(p) && text[:len(p)] == p {
			return text[len(p):], true
		}
	}
	return text, false
}

// User is the per-backend identity record (spec.md §3). Twitch/IRC
// identify users by a platform-assigned id string; Discord by
// snowflake (also a string here, decimal-encoded, matching the REST
// JSON wire form). Users are created lazily on first observation and
// are never deleted, per spec.md's invariant.
type User struct {
	Backend     Backend
	ID          string
	DisplayName string

	Flags  perm.Flag
	Groups []GroupID

	// Roles is populated only for Discord users.
	Roles []RoleID
}

// GroupID is shared with pkg/perm's GroupID so PermissionSet lookups
// need no translation layer.
type GroupID = perm.GroupID

// RoleID is shared with pkg/perm's RoleID for the same reason.
type RoleID = perm.RoleID

// Group is the cross-backend identity set (spec.md §3): a stable id,
// a human name, and the list of (backend, user-id) members. The
// invariant `U.groups contains G.id ⇔ G.members contains (U.backend,
// U.id)` is maintained by pkg/db's group-membership mutators, not by
// this type itself.
type Group struct {
	ID      GroupID
	Name    string
	Members []UserRef
}

// Role is a Discord-only snowflake + name + upstream permission
// bitmask, owned by a Guild.
type Role struct {
	ID              RoleID
	Name            string
	UpstreamPerms   uint64
}

// Guild is a Discord server: the aggregate of its roles, channels, and
// users, plus name-lookup indices kept in sync with the authoritative
// maps (spec.md §3).
type Guild struct {
	ID   string
	Name string

	Roles    map[RoleID]*Role
	Channels map[string]*Channel
	Users    map[string]*User

	// RoleByName and UserByName mirror Roles/Users for name-based
	// lookup (e.g. resolving a `%rolename` permission-spec token or a
	// `chmod` target given a display name rather than a snowflake).
	RoleByName map[string]RoleID
	UserByName map[string]string
}

// NewGuild builds an empty Guild with initialized index maps.
func NewGuild(id, name string) *Guild {
	return &Guild{
		ID:         id,
		Name:       name,
		Roles:      map[RoleID]*Role{},
		Channels:   map[string]*Channel{},
		Users:      map[string]*User{},
		RoleByName: map[string]RoleID{},
		UserByName: map[string]string{},
	}
}

// AddRole inserts or replaces a role and keeps the name index in sync.
func (g *Guild) AddRole(r *Role) {
	g.Roles[r.ID] = r
	g.RoleByName[r.Name] = r.ID
}

// AddUser inserts or replaces a user and keeps the name index in sync.
func (g *Guild) AddUser(u *User) {
	g.Users[u.ID] = u
	g.UserByName[u.DisplayName] = u.ID
}
