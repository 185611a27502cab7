// Package diff computes grouped line-level differences with the Myers
// shortest-edit-script algorithm. It is used to preview file rewrites before
// they are approved.
package diff

import (
	"encoding/json"
	"os"
	"slices"
	"strings"

	"github.com/m4xw311/mallard/errors"
)

// Hunk is one contiguous change. StartLine is the 1-based line in the old
// sequence where the change begins; for a pure insertion it is the old line
// the new lines are inserted before (len(old)+1 when appending).
type Hunk struct {
	StartLine int
	Removed   []string
	Added     []string
}

func (h Hunk) RemovedText() string { return strings.Join(h.Removed, "\n") }
func (h Hunk) AddedText() string   { return strings.Join(h.Added, "\n") }

// MarshalJSON encodes the hunk as {"line": n, "-": removed, "+": added}.
func (h Hunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Line    int    `json:"line"`
		Removed string `json:"-,"`
		Added   string `json:"+"`
	}{h.StartLine, h.RemovedText(), h.AddedText()})
}

type op uint8

const (
	opEqual op = iota
	opRemove
	opAdd
)

// Lines returns the hunks turning old into new, in old-line order.
// Identical inputs produce no hunks.
func Lines(old, new []string) []Hunk {
	if len(old) == 0 && len(new) == 0 {
		return nil
	}

	start := 0
	for start < len(old) && start < len(new) && old[start] == new[start] {
		start++
	}
	end := 0
	for start+end < len(old) && start+end < len(new) &&
		old[len(old)-1-end] == new[len(new)-1-end] {
		end++
	}

	ops := editScript(old[start:len(old)-end], new[start:len(new)-end])
	return group(old, new, ops, start)
}

// Strings splits both texts into lines (CRLF is treated as LF) and diffs them.
func Strings(old, new string) []Hunk {
	return Lines(splitLines(old), splitLines(new))
}

// File diffs the current content of path against newContent. A missing file
// yields no hunks.
func File(path, newContent string) ([]Hunk, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s for diff", path)
	}
	return Strings(string(raw), newContent), nil
}

// Apply replays hunks produced by Lines(old, x) on old and returns x.
func Apply(old []string, hunks []Hunk) []string {
	out := make([]string, 0, len(old))
	pos := 0
	for _, h := range hunks {
		at := min(max(h.StartLine-1, pos), len(old))
		out = append(out, old[pos:at]...)
		out = append(out, h.Added...)
		pos = min(at+len(h.Removed), len(old))
	}
	return append(out, old[pos:]...)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

func repeat(o op, n int) []op {
	ops := make([]op, n)
	for i := range ops {
		ops[i] = o
	}
	return ops
}

// editScript runs the greedy Myers search over a and b, recording the
// frontier before each edit distance d so the path can be rebuilt.
func editScript(a, b []string) []op {
	n, m := len(a), len(b)
	if n == 0 {
		return repeat(opAdd, m)
	}
	if m == 0 {
		return repeat(opRemove, n)
	}

	maxD := n + m
	offset := maxD + 1
	v := make([]int, 2*maxD+3)
	var trace [][]int

	for d := 0; d <= maxD; d++ {
		trace = append(trace, slices.Clone(v))
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				return backtrack(trace, n, m, offset)
			}
		}
	}
	return nil
}

func backtrack(trace [][]int, n, m, offset int) []op {
	ops := make([]op, 0, n+m)
	x, y := n, m
	for d := len(trace) - 1; d > 0; d-- {
		v := trace[d]
		k := x - y
		var prevK int
		if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := v[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			ops = append(ops, opEqual)
			x--
			y--
		}
		if x == prevX {
			ops = append(ops, opAdd)
		} else {
			ops = append(ops, opRemove)
		}
		x, y = prevX, prevY
	}
	for x > 0 && y > 0 {
		ops = append(ops, opEqual)
		x--
		y--
	}
	slices.Reverse(ops)
	return ops
}

// group merges runs of non-equal operations into hunks. offset is the length
// of the trimmed common prefix.
func group(old, new []string, ops []op, offset int) []Hunk {
	var hunks []Hunk
	var cur *Hunk
	oldPos, newPos := offset, offset

	flush := func() {
		if cur != nil {
			hunks = append(hunks, *cur)
			cur = nil
		}
	}

	for _, o := range ops {
		switch o {
		case opEqual:
			flush()
			oldPos++
			newPos++
		case opRemove:
			if cur == nil {
				cur = &Hunk{StartLine: oldPos + 1}
			}
			cur.Removed = append(cur.Removed, old[oldPos])
			oldPos++
		case opAdd:
			if cur == nil {
				cur = &Hunk{StartLine: oldPos + 1}
			}
			cur.Added = append(cur.Added, new[newPos])
			newPos++
		}
	}
	flush()
	return hunks
}
