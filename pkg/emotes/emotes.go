// Package emotes caches third-party (BTTV/FFZ) emote name-to-id mappings
// so channel drivers can resolve a `:name:` style token to the image id a
// client renders, mirroring source/emotes/{emotes,bttv,ffz}.cpp's
// CachedEmote/EmoteCacheDB but as a live in-memory cache rather than a
// section persisted in pkg/db: SPEC_FULL.md's Non-goals carve-out keeps
// emote fetchers internal to channel rendering, not a first-class stored
// product surface.
package emotes

import "sync"

// Source identifies which third-party service an emote came from.
type Source int

const (
	SourceBTTV Source = iota + 1
	SourceFFZ
)

func (s Source) String() string {
	switch s {
	case SourceBTTV:
		return "bttv"
	case SourceFFZ:
		return "ffz"
	default:
		return "unknown"
	}
}

// CachedEmote is one resolved name -> (id, url, source) mapping.
type CachedEmote struct {
	Name   string
	ID     string
	URL    string
	Source Source
}

// Cache is the interface channel drivers consume to resolve `:name:`
// fragments to a renderable emote id. Looking up a channel that has no
// emotes of its own falls back to the global table.
type Cache interface {
	Lookup(channel, name string) (CachedEmote, bool)
	IsEmoteWord(channel, word string) bool
}

// Store is the concrete Cache: one global table (BTTV's "global emotes")
// plus one per-channel table (BTTV channel emotes + FFZ room emoticons),
// replaced wholesale on every refresh rather than merged incrementally.
type Store struct {
	mu      sync.RWMutex
	global  map[string]CachedEmote
	channel map[string]map[string]CachedEmote
}

// NewStore returns an empty Store; channel drivers may call Lookup before
// the first fetcher run completes, they'll just miss until then.
func NewStore() *Store {
	return &Store{
		global:  map[string]CachedEmote{},
		channel: map[string]map[string]CachedEmote{},
	}
}

// UpdateGlobal replaces the global emote table.
func (s *Store) UpdateGlobal(list []CachedEmote) {
	table := make(map[string]CachedEmote, len(list))
	for _, e := range list {
		table[e.Name] = e
	}
	s.mu.Lock()
	s.global = table
	s.mu.Unlock()
}

// UpdateChannel replaces channel's emote table (BTTV channel + shared
// emotes, or FFZ room emoticons — callers merge before calling, since a
// channel table is a single atomic swap).
func (s *Store) UpdateChannel(channel string, list []CachedEmote) {
	table := make(map[string]CachedEmote, len(list))
	for _, e := range list {
		table[e.Name] = e
	}
	s.mu.Lock()
	s.channel[channel] = table
	s.mu.Unlock()
}

// Lookup resolves name against channel's table first, falling back to the
// global table.
func (s *Store) Lookup(channel, name string) (CachedEmote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if table, ok := s.channel[channel]; ok {
		if e, ok := table[name]; ok {
			return e, true
		}
	}
	e, ok := s.global[name]
	return e, ok
}

// IsEmoteWord reports whether word names a known emote in channel's table
// or the global table, without allocating a CachedEmote copy. Wired as
// pkg/dispatch.Dispatcher.DetectEmotes's per-word predicate.
func (s *Store) IsEmoteWord(channel, word string) bool {
	_, ok := s.Lookup(channel, word)
	return ok
}

var _ Cache = (*Store)(nil)
