package markov

import (
	"math/rand"
	"strconv"
	"strings"
	"sync"
)

// WordFreq is one (word index, frequency) entry of a WordList.
type WordFreq struct {
	Index int
	Freq  int64
}

// WordList accumulates successor frequencies for one prefix (spec.md
// §3): "a WordList stores a total frequency and a vector of
// (word-index, frequency)". The invariant `totalFrequency = Σ
// frequency` holds after every Add.
type WordList struct {
	Total   int64
	Entries []WordFreq
}

func (wl *WordList) add(index int, n int64) {
	for i := range wl.Entries {
		if wl.Entries[i].Index == index {
			wl.Entries[i].Freq += n
			wl.Total += n
			return
		}
	}
	wl.Entries = append(wl.Entries, WordFreq{Index: index, Freq: n})
	wl.Total += n
}

// Sample draws a uniform value in [0, Total) and walks the entry
// vector accumulating frequencies until it lands on one (spec.md
// §4.10 generation step 3).
func (wl *WordList) Sample(rng *rand.Rand) int {
	if wl.Total <= 0 || len(wl.Entries) == 0 {
		return EndIndex
	}
	draw := rng.Int63n(wl.Total)
	var acc int64
	for _, e := range wl.Entries {
		acc += e.Freq
		if draw < acc {
			return e.Index
		}
	}
	return wl.Entries[len(wl.Entries)-1].Index
}

// Table is the n-gram transition map, keyed by prefix (spec.md §3:
// "map(prefix→WordList) where prefix is a short sequence of global
// word indices").
type Table struct {
	mu sync.RWMutex
	m  map[string]*WordList
}

// NewTable returns an empty transition table.
func NewTable() *Table {
	return &Table{m: map[string]*WordList{}}
}

func prefixKey(prefix []int) string {
	var sb strings.Builder
	for i, p := range prefix {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(p))
	}
	return sb.String()
}

// AddEdge increments the (prefix -> next) transition's frequency,
// creating the WordList if this is the first time prefix was seen.
func (t *Table) AddEdge(prefix []int, next int) {
	key := prefixKey(prefix)
	t.mu.Lock()
	defer t.mu.Unlock()
	wl, ok := t.m[key]
	if !ok {
		wl = &WordList{}
		t.m[key] = wl
	}
	wl.add(next, 1)
}

// Lookup returns a snapshot of the WordList recorded for an exact
// prefix, if any edges have ever been added for it. The snapshot is
// copied out from behind the lock so callers never observe a
// concurrent AddEdge mutating Entries mid-walk.
func (t *Table) Lookup(prefix []int) (WordList, bool) {
	key := prefixKey(prefix)
	t.mu.RLock()
	defer t.mu.RUnlock()
	wl, ok := t.m[key]
	if !ok {
		return WordList{}, false
	}
	return WordList{Total: wl.Total, Entries: append([]WordFreq(nil), wl.Entries...)}, true
}

// Len reports the number of distinct prefixes recorded.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// TableEdge is one persisted (prefix-key, successor-frequencies) pair,
// used by pkg/db's markov-data section.
type TableEdge struct {
	Key     string
	Entries []WordFreq
}

// Export snapshots every prefix's WordList for persistence.
func (t *Table) Export() []TableEdge {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]TableEdge, 0, len(t.m))
	for k, wl := range t.m {
		out = append(out, TableEdge{Key: k, Entries: append([]WordFreq(nil), wl.Entries...)})
	}
	return out
}

// Import rebuilds the table from a prior Export, recomputing each
// WordList's Total from its entries rather than persisting it
// separately (the invariant Total = ΣFreq always holds).
func (t *Table) Import(edges []TableEdge) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = make(map[string]*WordList, len(edges))
	for _, e := range edges {
		wl := &WordList{Entries: append([]WordFreq(nil), e.Entries...)}
		for _, f := range wl.Entries {
			wl.Total += f.Freq
		}
		t.m[e.Key] = wl
	}
}
