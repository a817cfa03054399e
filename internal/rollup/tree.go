package rollup

import (
	"fmt"
	"sort"
)

// Node kinds, root first.
const (
	KindPlan       = "plan"
	KindPillar     = "pillar"
	KindObjective  = "objective"
	KindInitiative = "initiative"
	KindActivity   = "activity"
)

// Node is one entry in the arena. Links are by ID only; callers never mutate
// nested structures.
type Node struct {
	ID       string
	ParentID string
	Kind     string
	Title    string
	Position int
	Weight   float64
	// Progress is authoritative for activities and ignored for containers,
	// whose figures are always derived on read.
	Progress float64
	ChildIDs []string
}

// Tree is an ID-keyed arena snapshot of one plan's hierarchy.
type Tree struct {
	RootID string
	Nodes  map[string]*Node
}

func NewTree(rootID string) *Tree {
	return &Tree{RootID: rootID, Nodes: map[string]*Node{}}
}

func (t *Tree) Add(n *Node) {
	t.Nodes[n.ID] = n
	if n.ParentID != "" {
		if p, ok := t.Nodes[n.ParentID]; ok {
			p.ChildIDs = append(p.ChildIDs, n.ID)
		}
	}
}

// Children returns the node's children ordered by position then ID.
func (t *Tree) Children(id string) []*Node {
	n, ok := t.Nodes[id]
	if !ok {
		return nil
	}
	out := make([]*Node, 0, len(n.ChildIDs))
	for _, cid := range n.ChildIDs {
		if c, ok := t.Nodes[cid]; ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Progress derives the rolled-up figure for any node. Each container level
// feeds the already rounded figures of its direct children into its own
// weighted average, so rounding error compounds level by level. That matches
// the numbers the dashboard has always displayed and is locked in by tests;
// do not replace with a full-precision rollup.
func (t *Tree) Progress(id string) int {
	n, ok := t.Nodes[id]
	if !ok {
		return 0
	}
	if n.Kind == KindActivity {
		return Aggregate([]WeightedItem{{Weight: 1, Progress: n.Progress}})
	}
	var items []WeightedItem
	for _, c := range t.Children(id) {
		w := c.Weight
		if c.Kind == KindPillar {
			// Pillars carry no weight of their own; each counts equally.
			w = 1
		}
		p := float64(t.Progress(c.ID))
		if c.Kind == KindActivity {
			// Leaf progress participates unrounded in its initiative.
			p = c.Progress
		}
		items = append(items, WeightedItem{Weight: w, Progress: p})
	}
	return Aggregate(items)
}

// Path returns the chain of IDs from the root to the node, the stable way to
// address a node. Returns nil for unknown IDs.
func (t *Tree) Path(id string) []string {
	var path []string
	cur := id
	for cur != "" {
		n, ok := t.Nodes[cur]
		if !ok {
			return nil
		}
		path = append([]string{cur}, path...)
		cur = n.ParentID
	}
	return path
}

// Code renders a positional display code like "P3" or "O1.2". Codes shift when
// siblings are inserted or removed and are a projection for humans only, never
// an address for mutation.
func (t *Tree) Code(id string) string {
	path := t.Path(id)
	if len(path) < 2 {
		return ""
	}
	var indexes []int
	for i := 1; i < len(path); i++ {
		siblings := t.Children(path[i-1])
		idx := 0
		for j, s := range siblings {
			if s.ID == path[i] {
				idx = j + 1
				break
			}
		}
		indexes = append(indexes, idx)
	}
	prefix := map[string]string{
		KindPillar:     "P",
		KindObjective:  "O",
		KindInitiative: "I",
		KindActivity:   "A",
	}[t.Nodes[id].Kind]
	code := prefix
	for i, idx := range indexes {
		if i == 0 {
			code += fmt.Sprintf("%d", idx)
		} else {
			code += fmt.Sprintf(".%d", idx)
		}
	}
	return code
}
