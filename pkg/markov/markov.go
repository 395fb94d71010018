package markov

import (
	"context"
	"math/rand"
	"strings"
	"sync"

	"github.com/zhiayang/ikura/pkg/concurrency"
	"github.com/zhiayang/ikura/pkg/logger"
)

// MaxPrefixLength is the longest prefix trained per position (spec.md
// §3: "length 1..MAX_PREFIX_LENGTH, here 6").
const MaxPrefixLength = 6

// MaxOutputTokens caps a generated line's length (spec.md §4.10
// generation step 1).
const MaxOutputTokens = 50

// GenerationOrder is how many trailing tokens Generate looks up at
// each step before backing off to a shorter prefix (spec.md §4.10
// generation step 2: "k chosen from a narrow range; this
// implementation uses k=1").
const GenerationOrder = 1

type ingestJob struct {
	text           string
	emotePositions []int
}

// Engine owns the word table and transition table, and runs the
// single background worker spec.md §4.10 describes ("a single worker
// thread drains a bounded queue of (text, emote-positions) inputs").
type Engine struct {
	Words *WordTable
	Table *Table

	minLength int

	queue *concurrency.WaitQueue[ingestJob]

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine builds an Engine seeded for deterministic generation
// (spec.md §8 testable property 5: "with RNG seed S, !markov produces
// the same token sequence every run for seed S"). minLength is the
// config's min_markov_length (spec.md §6), used by callers that want
// to retry a too-short generation; Generate itself has no minimum.
func NewEngine(seed int64, minLength int) *Engine {
	return &Engine{
		Words:     NewWordTable(),
		Table:     NewTable(),
		minLength: minLength,
		queue:     concurrency.NewWaitQueue[ingestJob](256),
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Run drains the ingest queue until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	for {
		job, ok := e.queue.Pop(ctx)
		if !ok {
			return
		}
		e.train(job.text, job.emotePositions)
	}
}

// Ingest enqueues one observed message for training. Its signature
// matches pkg/dispatch.Dispatcher.IngestMarkov so it wires in
// directly at startup.
func (e *Engine) Ingest(text string, emotePositions []int) {
	if !e.queue.TryPush(ingestJob{text: text, emotePositions: emotePositions}) {
		logger.WarnC("markov", "ingest queue full, dropping message")
	}
}

func (e *Engine) chance(p float64) bool {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() < p
}

// train implements spec.md §4.10 steps 1-5.
func (e *Engine) train(text string, emotePositions []int) {
	tokens := Tokenize(text)
	if len(tokens) < 2 {
		return
	}
	if len(tokens) <= 5 && e.chance(0.6) {
		return
	}

	emoteSet := make(map[int]bool, len(emotePositions))
	for _, p := range emotePositions {
		emoteSet[p] = true
	}

	ids := make([]int, 0, len(tokens)+2)
	ids = append(ids, StartIndex)
	for i, tok := range tokens {
		ids = append(ids, e.Words.Intern(tok, emoteSet[i]))
	}
	ids = append(ids, EndIndex)

	for i := 1; i < len(ids); i++ {
		maxK := MaxPrefixLength
		if maxK > i {
			maxK = i
		}
		for k := 1; k <= maxK; k++ {
			e.Table.AddEdge(ids[i-k:i], ids[i])
		}
	}
}

// Generate produces one line (spec.md §4.10 generation), matching
// pkg/registry.Registry.MarkovGenerate's signature.
func (e *Engine) Generate() (string, error) {
	seq := []int{StartIndex}
	for len(seq)-1 < MaxOutputTokens {
		next, ok := e.nextToken(seq)
		if !ok || next == EndIndex {
			break
		}
		seq = append(seq, next)
	}
	return e.render(seq[1:]), nil
}

// nextToken samples a successor for the last k tokens of seq, backing
// off to shorter prefixes when the longer one has no recorded
// successors (spec.md §4.10 generation step 4).
func (e *Engine) nextToken(seq []int) (int, bool) {
	for k := GenerationOrder; k >= 1; k-- {
		if k > len(seq) {
			continue
		}
		prefix := seq[len(seq)-k:]
		wl, ok := e.Table.Lookup(prefix)
		if !ok || wl.Total == 0 {
			continue
		}
		e.rngMu.Lock()
		n := wl.Sample(e.rng)
		e.rngMu.Unlock()
		return n, true
	}
	return 0, false
}

// render joins a generated index sequence into a message string:
// emote tokens render by name, and attaching punctuation tokens drop
// their preceding space, sharing the join rule spec.md §4.6 defines
// for macro rendering.
func (e *Engine) render(ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		tok, _ := e.Words.Lookup(id)
		if i > 0 && !startsWithAttachingPunct(tok) {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String()
}

func startsWithAttachingPunct(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '.', ',', '?', '!':
		return true
	default:
		return false
	}
}
