// Package trie implements the fuzzy, rune-keyed prefix matcher the pipeline
// stages use to resolve administrative names.
//
// Keys are normalized name strings; values are dictionary rows. A lookup
// walks the target chain as far as the stored keys allow and reports every
// terminal it can reach, together with the number of target characters
// consumed (the match depth) and the unmatched tail of the target, which
// keeps its provenance so later stages can continue where the match stopped.
//
// Two relaxations widen the walk:
//
//   - Extra challenges: administrative suffixes (区, 町, 市, 村, ...) that may
//     be stepped over in the stored key without consuming a target character.
//     Such virtual steps never count toward depth, and matches using fewer of
//     them win ties.
//   - Fuzzy wildcard: a single designated character in the target may stand
//     in for any stored character, at most once per walk.
package trie

import (
	"errors"
	"sort"

	"github.com/LunaInsidious/abr-geocoder/internal/charnode"
)

// ErrCorruptIndex reports a terminal node with no stored rows. It indicates
// the index was built from inconsistent dictionary data and is not
// recoverable at query time.
var ErrCorruptIndex = errors.New("trie: terminal node with empty info")

// maxVirtualSteps bounds how many key characters a single walk may step over
// via extra challenges.
const maxVirtualSteps = 2

// Query describes one lookup.
type Query struct {
	// Target is the chain to match against stored keys.
	Target charnode.Chain
	// ExtraChallenges are characters that may be virtually skipped in a
	// stored key without consuming target characters.
	ExtraChallenges []rune
	// PartialMatches returns every terminal encountered along the walk
	// instead of only the deepest.
	PartialMatches bool
	// Fuzzy designates a wildcard character in the target; zero disables it.
	Fuzzy rune
}

// Match is one result of a lookup.
type Match[V any] struct {
	Info V
	// Depth is the number of target characters consumed.
	Depth int
	// Unmatched is the target tail starting at Depth, sharing provenance
	// with the query target.
	Unmatched charnode.Chain
	// Key is the stored key that produced the match.
	Key string
	// VirtualSteps counts extra-challenge characters stepped over.
	VirtualSteps int
}

// ResidentialFlagged is implemented by dictionary rows that carry the
// residence-addressing flag; rows carrying a value sort ahead of rows that
// do not at equal depth.
type ResidentialFlagged interface {
	ResidentialFlag() string
}

// Finder is a rune trie from normalized keys to dictionary rows. It is
// written once during stage initialization and read concurrently afterwards;
// Append must not race with Find.
type Finder[V any] struct {
	root *node[V]
	size int
}

type node[V any] struct {
	children map[rune]*node[V]
	values   []V
	key      string
}

// New creates an empty Finder.
func New[V any]() *Finder[V] {
	return &Finder[V]{root: &node[V]{}}
}

// Append inserts value under key. Multiple values may share a key; they are
// kept in insertion order. Empty keys are ignored.
func (f *Finder[V]) Append(key string, value V) {
	if key == "" {
		return
	}
	n := f.root
	for _, r := range key {
		if n.children == nil {
			n.children = make(map[rune]*node[V])
		}
		child, ok := n.children[r]
		if !ok {
			child = &node[V]{}
			n.children[r] = child
		}
		n = child
	}
	n.values = append(n.values, value)
	n.key = key
	f.size++
}

// Len returns the number of values stored.
func (f *Finder[V]) Len() int { return f.size }

type walkState[V any] struct {
	n         *node[V]
	pos       int
	fuzzyUsed bool
	virtual   int
}

type candidate[V any] struct {
	n       *node[V]
	depth   int
	virtual int
}

// Find walks the target and returns matches ordered by depth descending,
// then residential-flag presence, then key. Returns ErrCorruptIndex if a
// reached terminal holds no rows.
func (f *Finder[V]) Find(q Query) ([]Match[V], error) {
	target := q.Target.Runes()

	// best virtual count per reached terminal
	found := make(map[*node[V]]candidate[V])

	stack := []walkState[V]{{n: f.root, pos: 0}}
	type visitKey struct {
		n         *node[V]
		pos       int
		fuzzyUsed bool
		virtual   int
	}
	visited := make(map[visitKey]struct{})

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		vk := visitKey{s.n, s.pos, s.fuzzyUsed, s.virtual}
		if _, ok := visited[vk]; ok {
			continue
		}
		visited[vk] = struct{}{}

		if len(s.n.values) > 0 || s.n.key != "" {
			prev, ok := found[s.n]
			if !ok || s.pos > prev.depth || (s.pos == prev.depth && s.virtual < prev.virtual) {
				found[s.n] = candidate[V]{n: s.n, depth: s.pos, virtual: s.virtual}
			}
		}

		// Consuming steps.
		if s.pos < len(target) {
			t := target[s.pos]
			if child, ok := s.n.children[t]; ok {
				stack = append(stack, walkState[V]{n: child, pos: s.pos + 1, fuzzyUsed: s.fuzzyUsed, virtual: s.virtual})
			}
			if q.Fuzzy != 0 && t == q.Fuzzy && !s.fuzzyUsed {
				for r, child := range s.n.children {
					if r == t {
						continue
					}
					stack = append(stack, walkState[V]{n: child, pos: s.pos + 1, fuzzyUsed: true, virtual: s.virtual})
				}
			}
		}

		// Virtual steps over optional suffix characters in the key.
		if s.virtual < maxVirtualSteps {
			for _, c := range q.ExtraChallenges {
				if child, ok := s.n.children[c]; ok {
					stack = append(stack, walkState[V]{n: child, pos: s.pos, fuzzyUsed: s.fuzzyUsed, virtual: s.virtual + 1})
				}
			}
		}
	}

	cands := make([]candidate[V], 0, len(found))
	maxDepth := -1
	for _, c := range found {
		cands = append(cands, c)
		if c.depth > maxDepth {
			maxDepth = c.depth
		}
	}

	var matches []Match[V]
	for _, c := range cands {
		// A terminal reached without consuming anything matches no part of
		// the target; it only happens via virtual steps and is never useful.
		if c.depth == 0 {
			continue
		}
		if !q.PartialMatches && c.depth < maxDepth {
			continue
		}
		if len(c.n.values) == 0 {
			return nil, ErrCorruptIndex
		}
		for _, v := range c.n.values {
			matches = append(matches, Match[V]{
				Info:         v,
				Depth:        c.depth,
				Unmatched:    q.Target.Slice(c.depth),
				Key:          c.n.key,
				VirtualSteps: c.virtual,
			})
		}
	}

	sortMatches(matches)
	return matches, nil
}

// sortMatches orders results by depth descending, fewer virtual steps,
// residential-flag presence, then key; the remainder stays in insertion
// order.
func sortMatches[V any](matches []Match[V]) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Depth != b.Depth {
			return a.Depth > b.Depth
		}
		if a.VirtualSteps != b.VirtualSteps {
			return a.VirtualSteps < b.VirtualSteps
		}
		af, bf := residentialFlag(a.Info), residentialFlag(b.Info)
		if (af != "") != (bf != "") {
			return af != ""
		}
		return a.Key < b.Key
	})
}

func residentialFlag(v any) string {
	if f, ok := v.(ResidentialFlagged); ok {
		return f.ResidentialFlag()
	}
	return ""
}
