package db

import (
	"strings"
	"sync"
	"time"

	"github.com/zhiayang/ikura/pkg/codec"
	"github.com/zhiayang/ikura/pkg/dispatch"
	"github.com/zhiayang/ikura/pkg/model"
)

// MaxLogEntries bounds the message log (spec.md §9's msglog is an
// append-only query surface, not an unbounded one; a real chat bot
// runs for months, so the arena is compacted once it holds more than
// this many entries).
const MaxLogEntries = 50000

// logRecord is one entry's metadata; the message text itself lives in
// MessageLog.arena at [offset, offset+length), the "interned message
// text" spec.md §3 and SPEC_FULL.md §9 describe.
type logRecord struct {
	Timestamp      time.Time
	UserID         string
	Channel        model.ChannelRef
	offset, length uint32
	EmotePositions []int
	IsCommand      bool
	IsEdit         bool
}

// MessageLog is pkg/db's message-data section: a byte arena of
// concatenated message text plus a parallel slice of metadata records,
// queried by SPEC_FULL.md §9's RecentMessages surface.
type MessageLog struct {
	mu      sync.RWMutex
	arena   []byte
	entries []logRecord
}

// NewMessageLog returns an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append records one dispatcher LogEntry, interning its words into the
// arena and compacting once the entry count exceeds MaxLogEntries.
func (l *MessageLog) Append(e dispatch.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	text := strings.Join(e.Words, " ")
	off := len(l.arena)
	l.arena = append(l.arena, text...)

	l.entries = append(l.entries, logRecord{
		Timestamp:      e.Timestamp,
		UserID:         e.UserID,
		Channel:        e.Channel,
		offset:         uint32(off),
		length:         uint32(len(text)),
		EmotePositions: append([]int(nil), e.EmotePositions...),
		IsCommand:      e.IsCommand,
		IsEdit:         e.IsEdit,
	})

	if len(l.entries) > MaxLogEntries {
		l.compactLocked(len(l.entries) - MaxLogEntries)
	}
}

// compactLocked drops the oldest `drop` entries and rebuilds the arena
// so it holds only the text the retained entries reference. Callers
// must hold l.mu for writing.
func (l *MessageLog) compactLocked(drop int) {
	kept := l.entries[drop:]
	newArena := make([]byte, 0, len(l.arena))
	newEntries := make([]logRecord, len(kept))
	for i, rec := range kept {
		text := l.arena[rec.offset : rec.offset+rec.length]
		newOff := len(newArena)
		newArena = append(newArena, text...)
		rec.offset = uint32(newOff)
		newEntries[i] = rec
	}
	l.arena = newArena
	l.entries = newEntries
}

func (l *MessageLog) textLocked(rec logRecord) string {
	return string(l.arena[rec.offset : rec.offset+rec.length])
}

// RecentMessages returns up to n most-recent messages observed in
// channel, oldest first (SPEC_FULL.md §9's query surface, reached
// through Database.RecentMessages).
func (l *MessageLog) RecentMessages(channel model.ChannelRef, n int) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		rec := l.entries[i]
		if rec.Channel != channel {
			continue
		}
		out = append(out, l.textLocked(rec))
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len reports the number of retained entries.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func encodeMessageLog(w *codec.Writer, l *MessageLog) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w.WriteBytes(l.arena)
	w.WriteListHeader(len(l.entries))
	for _, rec := range l.entries {
		w.WriteS64(rec.Timestamp.UnixMilli())
		w.WriteString(rec.UserID)
		w.WriteS64(int64(rec.Channel.Backend))
		w.WriteString(rec.Channel.ID)
		w.WriteU64(uint64(rec.offset))
		w.WriteU64(uint64(rec.length))
		w.WriteListHeader(len(rec.EmotePositions))
		for _, p := range rec.EmotePositions {
			w.WriteS64(int64(p))
		}
		w.WriteBool(rec.IsCommand)
		w.WriteBool(rec.IsEdit)
	}
}

func decodeMessageLog(r *codec.Reader) (*MessageLog, error) {
	arena, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	n, err := r.ReadListHeader()
	if err != nil {
		return nil, err
	}
	entries := make([]logRecord, 0, n)
	for i := 0; i < n; i++ {
		ms, err := r.ReadS64()
		if err != nil {
			return nil, err
		}
		uid, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		backend, err := r.ReadS64()
		if err != nil {
			return nil, err
		}
		chID, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		off, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		length, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		np, err := r.ReadListHeader()
		if err != nil {
			return nil, err
		}
		rec := logRecord{
			Timestamp: time.UnixMilli(ms),
			UserID:    uid,
			Channel:   model.ChannelRef{Backend: model.Backend(backend), ID: chID},
			offset:    uint32(off),
			length:    uint32(length),
		}
		for j := 0; j < np; j++ {
			p, err := r.ReadS64()
			if err != nil {
				return nil, err
			}
			rec.EmotePositions = append(rec.EmotePositions, int(p))
		}
		if rec.IsCommand, err = r.ReadBool(); err != nil {
			return nil, err
		}
		if rec.IsEdit, err = r.ReadBool(); err != nil {
			return nil, err
		}
		entries = append(entries, rec)
	}
	return &MessageLog{arena: arena, entries: entries}, nil
}
