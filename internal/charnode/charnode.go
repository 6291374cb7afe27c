// Package charnode provides a character chain with per-character provenance.
//
// Every character of an address under normalization carries the rune index it
// occupied in the original input, or -1 when the character was produced by a
// normalization rewrite. Rewrites are non-destructive: untouched runs keep
// their original nodes, so an unmatched tail handed back by the trie matcher
// still points at the exact positions of the raw input.
//
// Chains are arena-backed: nodes live in a contiguous slice and tails are
// sub-slices sharing the backing array. A Chain must be treated as immutable
// once it has been handed to another pipeline stage; all operations return a
// new Chain.
package charnode

import (
	"regexp"
	"strings"
	"unicode"
)

// Node is a single character with provenance.
type Node struct {
	Char      rune
	OrigIndex int // rune index in the original input, -1 for inserted characters
	Inserted  bool
}

// Chain is an immutable sequence of Nodes.
type Chain struct {
	nodes []Node
}

// FromString builds a Chain whose nodes carry their own rune indexes.
func FromString(s string) Chain {
	runes := []rune(s)
	nodes := make([]Node, len(runes))
	for i, r := range runes {
		nodes[i] = Node{Char: r, OrigIndex: i}
	}
	return Chain{nodes: nodes}
}

// fromNodes wraps an existing node slice without copying.
func fromNodes(nodes []Node) Chain {
	return Chain{nodes: nodes}
}

// Len returns the number of characters in the chain.
func (c Chain) Len() int { return len(c.nodes) }

// Empty reports whether the chain has no characters.
func (c Chain) Empty() bool { return len(c.nodes) == 0 }

// At returns the node at rune position i.
func (c Chain) At(i int) Node { return c.nodes[i] }

// String renders the chain's current characters.
func (c Chain) String() string {
	var b strings.Builder
	b.Grow(len(c.nodes) * 3)
	for _, n := range c.nodes {
		b.WriteRune(n.Char)
	}
	return b.String()
}

// Runes returns the chain's characters as a rune slice.
func (c Chain) Runes() []rune {
	rs := make([]rune, len(c.nodes))
	for i, n := range c.nodes {
		rs[i] = n.Char
	}
	return rs
}

// Slice returns the tail starting at rune position from. The tail shares the
// backing array with the receiver.
func (c Chain) Slice(from int) Chain {
	if from >= len(c.nodes) {
		return Chain{}
	}
	if from < 0 {
		from = 0
	}
	return Chain{nodes: c.nodes[from:]}
}

// NextOrigIndex returns the original rune index of the first character in the
// chain that came from the input, or -1 when the chain holds only inserted
// characters (or nothing). The pipeline uses this to derive how many source
// characters a match consumed.
func (c Chain) NextOrigIndex() int {
	for _, n := range c.nodes {
		if n.OrigIndex >= 0 {
			return n.OrigIndex
		}
	}
	return -1
}

// Map applies a 1:1 rune transform, preserving provenance of every position.
func (c Chain) Map(fn func(rune) rune) Chain {
	nodes := make([]Node, len(c.nodes))
	copy(nodes, c.nodes)
	for i := range nodes {
		nodes[i].Char = fn(nodes[i].Char)
	}
	return Chain{nodes: nodes}
}

// Filter keeps only the characters the predicate accepts. Surviving nodes keep
// their provenance.
func (c Chain) Filter(keep func(rune) bool) Chain {
	nodes := make([]Node, 0, len(c.nodes))
	for _, n := range c.nodes {
		if keep(n.Char) {
			nodes = append(nodes, n)
		}
	}
	return Chain{nodes: nodes}
}

// StripSpace removes all Unicode whitespace, including the ideographic space.
func (c Chain) StripSpace() Chain {
	return c.Filter(func(r rune) bool { return !unicode.IsSpace(r) })
}

// TrimLeft removes leading characters contained in cutset.
func (c Chain) TrimLeft(cutset string) Chain {
	i := 0
	for i < len(c.nodes) && strings.ContainsRune(cutset, c.nodes[i].Char) {
		i++
	}
	return c.Slice(i)
}

// ReplaceAll rewrites every match of re with the expansion of repl (which may
// reference capture groups with $1, $2, ...). Characters outside matches keep
// their original nodes. Replacement characters are flagged Inserted and carry
// the original index of the first input-derived character of the span they
// replaced, so positional accounting stays anchored to the raw input.
func (c Chain) ReplaceAll(re *regexp.Regexp, repl string) Chain {
	return c.replace(re, func(src string, m []int) string {
		return string(re.ExpandString(nil, repl, src, m))
	})
}

// ReplaceAllFunc rewrites every match of re with fn(match).
func (c Chain) ReplaceAllFunc(re *regexp.Regexp, fn func(string) string) Chain {
	return c.replace(re, func(src string, m []int) string {
		return fn(src[m[0]:m[1]])
	})
}

func (c Chain) replace(re *regexp.Regexp, expand func(src string, m []int) string) Chain {
	src := c.String()
	matches := re.FindAllStringSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return c
	}

	// Byte offset of each rune in src, used to translate the regexp engine's
	// byte positions back into node positions.
	byteToNode := make(map[int]int, len(c.nodes))
	off := 0
	for i, n := range c.nodes {
		byteToNode[off] = i
		off += len(string(n.Char))
	}
	byteToNode[off] = len(c.nodes)

	out := make([]Node, 0, len(c.nodes))
	prev := 0
	for _, m := range matches {
		start, end := byteToNode[m[0]], byteToNode[m[1]]
		out = append(out, c.nodes[prev:start]...)

		origin := -1
		for _, n := range c.nodes[start:end] {
			if n.OrigIndex >= 0 {
				origin = n.OrigIndex
				break
			}
		}
		for _, r := range expand(src, m) {
			out = append(out, Node{Char: r, OrigIndex: origin, Inserted: true})
		}
		prev = end
	}
	out = append(out, c.nodes[prev:]...)
	return fromNodes(out)
}
