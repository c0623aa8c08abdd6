package rewrite

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hashicorp/go-set/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"v.io/x/lib/toposort"

	"github.com/pescuma/submerge/lib/model"
)

// Node is a commit to be resolved. A submodule commit that is missing from the store but has an
// override becomes a substitution node: it has no Commit and depends only on its Substitute.
type Node struct {
	History    model.History
	ID         plumbing.Hash
	Commit     *object.Commit
	Substitute plumbing.Hash
}

func (n *Node) Key() model.CommitKey {
	return model.NewCommitKey(n.History, n.ID)
}

func (n *Node) Substituted() bool {
	return n.Commit == nil
}

func (n *Node) dependencies() []plumbing.Hash {
	if n.Substituted() {
		return []plumbing.Hash{n.Substitute}
	}
	return n.Commit.ParentHashes
}

type Walker struct {
	store     ObjectStore
	overrides *model.OverrideTable
	resolved  func(model.CommitKey) bool
}

// NewWalker creates a walker that stops at commits for which resolved returns true. resolved can
// be nil to walk everything.
func NewWalker(store ObjectStore, overrides *model.OverrideTable, resolved func(model.CommitKey) bool) *Walker {
	if resolved == nil {
		resolved = func(model.CommitKey) bool { return false }
	}

	return &Walker{
		store:     store,
		overrides: overrides,
		resolved:  resolved,
	}
}

// Walk returns the unresolved commits reachable from tip, parents before children.
func (w *Walker) Walk(h model.History, tip plumbing.Hash) ([]*Node, error) {
	return w.WalkAll(h, []plumbing.Hash{tip})
}

// WalkAll is Walk over several tips at once, yielding shared ancestors a single time.
func (w *Walker) WalkAll(h model.History, tips []plumbing.Hash) ([]*Node, error) {
	nodes := make(map[plumbing.Hash]*Node)
	var order []plumbing.Hash

	visited := set.New[plumbing.Hash](len(tips))
	queue := append([]plumbing.Hash{}, tips...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited.Contains(id) {
			continue
		}
		visited.Insert(id)

		if w.resolved(model.NewCommitKey(h, id)) {
			continue
		}

		node, err := w.Load(h, id)
		if err != nil {
			return nil, err
		}

		nodes[id] = node
		order = append(order, id)
		queue = append(queue, node.dependencies()...)
	}

	return w.sort(h, order, nodes)
}

// Load reads a single commit, turning a missing submodule commit into a substitution node when
// there is an override for it.
func (w *Walker) Load(h model.History, id plumbing.Hash) (*Node, error) {
	c, err := w.store.LoadCommit(h, id)
	if err != nil {
		var missing *model.MissingCommitError
		if h == model.Submodule && errors.As(err, &missing) {
			if sub, ok := w.overrides.Get(id); ok {
				return &Node{History: h, ID: id, Substitute: sub}, nil
			}
		}

		return nil, err
	}

	return &Node{History: h, ID: id, Commit: c}, nil
}

func (w *Walker) sort(h model.History, order []plumbing.Hash, nodes map[plumbing.Hash]*Node) ([]*Node, error) {
	graph := toposort.Sorter{}
	for _, id := range order {
		graph.AddNode(id)
		for _, dep := range nodes[id].dependencies() {
			if _, ok := nodes[dep]; ok {
				graph.AddEdge(id, dep)
			}
		}
	}

	sorted, cycles := graph.Sort()
	if len(cycles) > 0 {
		return nil, &model.CyclicHistoryError{
			History: h,
			IDs:     lo.Map(cycles[0], func(n interface{}, _ int) plumbing.Hash { return n.(plumbing.Hash) }),
		}
	}

	return lo.Map(sorted, func(n interface{}, _ int) *Node { return nodes[n.(plumbing.Hash)] }), nil
}
