// Package db implements the database (spec.md C2): the single
// in-memory aggregate of all persistent state (users, groups,
// channels, commands, Markov tables, message log), a versioned
// superblock, and the background worker that rewrites the whole file
// atomically on a timer. Grounded on pkg/fileutil.WriteFileAtomic's
// temp-file-then-rename pattern (the teacher's own durable-write
// helper) and pkg/codec for every section's binary shape.
package db

import "fmt"

// Magic is the superblock's constant 8-byte identifier (spec.md §4.2
// and SPEC_FULL.md's module-path note: "unchanged from the original").
const Magic = "ikura_db"

// CurrentVersion is the version this build writes. DiscordDataMinVersion
// and IRCDataMinVersion are both <= CurrentVersion, so both sections are
// always present in a file this build writes; they exist so Load can
// still read an older file that predates one or the other section
// (spec.md §6: "discord-data (present iff version >= a known
// threshold); irc-data (present iff version >= 25)").
const (
	CurrentVersion        uint32 = 25
	DiscordDataMinVersion uint32 = 2
	IRCDataMinVersion     uint32 = 25
)

// FlagReadOnly is the superblock flag bit for read-only mode. Sync
// always writes a flags word of 0 (a read-only database never writes),
// and Load reads the flags word without acting on it.
const FlagReadOnly uint32 = 1 << 0

// Superblock is the 8-byte-magic + u32 version + u32 flags + u64
// last-modified-ms header spec.md §4.2 describes.
type Superblock struct {
	Version        uint32
	Flags          uint32
	LastModifiedMs uint64
}

// ErrVersionTooNew is returned by Load when the file's version exceeds
// CurrentVersion (spec.md §4.2 step 1: "refuse if version > current").
var ErrVersionTooNew = fmt.Errorf("database version is newer than this build supports")

// ErrBadMagic is returned when the superblock's magic doesn't match
// Magic.
var ErrBadMagic = fmt.Errorf("database file has an invalid superblock magic")
