package rewrite

import (
	"sync"
	"sync/atomic"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/hashicorp/go-set/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/pescuma/submerge/lib/caches"
	"github.com/pescuma/submerge/lib/model"
	"github.com/pescuma/submerge/lib/utils"
)

type resolution struct {
	image plumbing.Hash

	// tree is the original root tree of the submodule commit, or of its substitute.
	tree plumbing.Hash

	// gitlink is the submodule commit the original superproject commit pointed to.
	gitlink plumbing.Hash
}

type Stats struct {
	Superproject int
	Submodule    int
	Substituted  int
}

// Resolver holds the old to new mapping of a single run. Each original commit is rewritten at
// most once, even with concurrent callers. A resolver that returned an error must be discarded.
type Resolver struct {
	store     ObjectStore
	mountPath string
	overrides *model.OverrideTable
	workers   int

	walker   *Walker
	merger   *TreeMerger
	rewriter *Rewriter
	memo     caches.Cache[model.CommitKey, *resolution]

	mutex   sync.Mutex
	mapping *model.RewriteMapping

	superproject atomic.Int64
	submodule    atomic.Int64
	substituted  atomic.Int64

	onResolved func(n int)
}

func NewResolver(store ObjectStore, mountPath string, overrides *model.OverrideTable, workers int) (*Resolver, error) {
	mountPath, err := CleanMountPath(mountPath)
	if err != nil {
		return nil, err
	}

	if overrides == nil {
		overrides = model.NewOverrideTable()
	}

	result := &Resolver{
		store:     store,
		mountPath: mountPath,
		overrides: overrides,
		workers:   utils.Max(workers, 0),
		merger:    NewTreeMerger(store),
		rewriter:  NewRewriter(store),
		memo:      caches.NewUnlimited[model.CommitKey, *resolution](),
		mapping:   model.NewRewriteMapping(),
	}
	result.walker = NewWalker(store, overrides, result.isResolved)

	return result, nil
}

// Resolve returns the image of a commit. All its parents must have been resolved already.
func (r *Resolver) Resolve(h model.History, id plumbing.Hash) (plumbing.Hash, error) {
	if res, ok := r.memo.Peek(model.NewCommitKey(h, id)); ok {
		return res.image, nil
	}

	node, err := r.walker.Load(h, id)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	return r.resolveNode(node)
}

// ResolveTip resolves every commit reachable from tip, parents first, and returns the image of tip.
// For the superproject, the submodule commits its gitlinks point to are resolved before.
func (r *Resolver) ResolveTip(h model.History, tip plumbing.Hash) (plumbing.Hash, error) {
	nodes, err := r.walker.Walk(h, tip)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if h == model.Superproject {
		err = r.resolveSubmoduleTargets(nodes)
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}

	err = r.resolveNodes(nodes)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	return r.Resolve(h, tip)
}

func (r *Resolver) resolveSubmoduleTargets(nodes []*Node) error {
	var targets []plumbing.Hash
	for _, n := range nodes {
		target, found, err := r.merger.FindGitlink(n.Commit.TreeHash, r.mountPath)
		if err != nil {
			return withCommit(err, n.ID)
		}
		if found {
			targets = append(targets, target)
		}
	}

	if len(targets) == 0 {
		return nil
	}

	subNodes, err := r.walker.WalkAll(model.Submodule, lo.Uniq(targets))
	if err != nil {
		return err
	}

	return r.resolveNodes(subNodes)
}

// parallel is false only for a single worker. Zero workers lets the process group pick the
// number of routines.
func (r *Resolver) parallel() bool {
	return r.workers != 1
}

// resolveNodes expects nodes in walk order. When parallel, nodes are processed in waves where
// every node only depends on nodes of earlier waves.
func (r *Resolver) resolveNodes(nodes []*Node) error {
	if !r.parallel() {
		for _, n := range nodes {
			_, err := r.resolveNode(n)
			if err != nil {
				return err
			}
		}
		return nil
	}

	for _, wave := range waves(nodes) {
		_, err := utils.RunParallel(wave, r.resolveNode, utils.ParallelOptions{Routines: r.workers})
		if err != nil {
			return err
		}
	}

	return nil
}

func waves(nodes []*Node) [][]*Node {
	var result [][]*Node

	depth := make(map[plumbing.Hash]int, len(nodes))
	for _, n := range nodes {
		d := 0
		for _, dep := range n.dependencies() {
			if pd, ok := depth[dep]; ok && pd+1 > d {
				d = pd + 1
			}
		}
		depth[n.ID] = d

		if d == len(result) {
			result = append(result, nil)
		}
		result[d] = append(result[d], n)
	}

	return result
}

func (r *Resolver) resolveNode(n *Node) (plumbing.Hash, error) {
	res, err := r.memo.Get(n.Key(), func(model.CommitKey) (*resolution, error) {
		var res *resolution
		var err error

		switch {
		case n.Substituted():
			res, err = r.substitute(n.ID)
		case n.History == model.Submodule:
			res, err = r.rewriteSubmodule(n.Commit)
		default:
			res, err = r.rewriteSuperproject(n.Commit)
		}
		if err != nil {
			return nil, err
		}

		if r.onResolved != nil {
			r.onResolved(1)
		}

		return res, nil
	})
	if err != nil {
		return plumbing.ZeroHash, err
	}

	return res.image, nil
}

func (r *Resolver) substitute(id plumbing.Hash) (*resolution, error) {
	sub, err := r.ApplyOverride(id)
	if err != nil {
		return nil, err
	}

	target, err := r.resolved(model.Submodule, sub)
	if err != nil {
		return nil, err
	}

	r.record(&model.MappedCommit{History: model.Submodule, Original: id, New: target.image, SubstitutedBy: sub})
	r.substituted.Add(1)

	return &resolution{image: target.image, tree: target.tree}, nil
}

func (r *Resolver) rewriteSubmodule(c *object.Commit) (*resolution, error) {
	parents, _, err := r.parentImages(model.Submodule, c)
	if err != nil {
		return nil, err
	}

	tree, err := r.merger.Mount(c.TreeHash, r.mountPath)
	if err != nil {
		return nil, err
	}

	image, err := r.rewriter.Rewrite(c, parents, tree)
	if err != nil {
		return nil, err
	}

	r.record(&model.MappedCommit{History: model.Submodule, Original: c.Hash, New: image})
	r.submodule.Add(1)

	return &resolution{image: image, tree: c.TreeHash}, nil
}

func (r *Resolver) rewriteSuperproject(c *object.Commit) (*resolution, error) {
	parents, parentGitlinks, err := r.parentImages(model.Superproject, c)
	if err != nil {
		return nil, err
	}

	gitlink, found, err := r.merger.FindGitlink(c.TreeHash, r.mountPath)
	if err != nil {
		return nil, withCommit(err, c.Hash)
	}

	subTree := plumbing.ZeroHash
	if found {
		sub, err := r.resolved(model.Submodule, gitlink)
		if err != nil {
			return nil, err
		}

		subTree = sub.tree

		// The pointer changed here, so the submodule history joins in as an extra parent.
		if !parentGitlinks.Contains(gitlink) {
			parents = append(parents, sub.image)
		}
	}

	tree, err := r.merger.MergeTree(c.TreeHash, subTree, r.mountPath)
	if err != nil {
		return nil, withCommit(err, c.Hash)
	}

	image, err := r.rewriter.Rewrite(c, parents, tree)
	if err != nil {
		return nil, err
	}

	r.record(&model.MappedCommit{History: model.Superproject, Original: c.Hash, New: image})
	r.superproject.Add(1)

	return &resolution{image: image, gitlink: gitlink}, nil
}

func (r *Resolver) parentImages(h model.History, c *object.Commit) ([]plumbing.Hash, *set.Set[plumbing.Hash], error) {
	images := make([]plumbing.Hash, 0, len(c.ParentHashes)+1)
	gitlinks := set.New[plumbing.Hash](len(c.ParentHashes))

	for _, p := range c.ParentHashes {
		res, err := r.resolved(h, p)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "parent of %v", c.Hash)
		}

		images = append(images, res.image)
		if !res.gitlink.IsZero() {
			gitlinks.Insert(res.gitlink)
		}
	}

	return images, gitlinks, nil
}

func (r *Resolver) resolved(h model.History, id plumbing.Hash) (*resolution, error) {
	res, ok := r.memo.Peek(model.NewCommitKey(h, id))
	if !ok {
		return nil, errors.Errorf("%v commit %v was not resolved before its dependents", h, id)
	}
	return res, nil
}

func (r *Resolver) isResolved(key model.CommitKey) bool {
	_, ok := r.memo.Peek(key)
	return ok
}

// ApplyOverride returns the substitute for a missing submodule commit.
func (r *Resolver) ApplyOverride(id plumbing.Hash) (plumbing.Hash, error) {
	sub, ok := r.overrides.Get(id)
	if !ok {
		return plumbing.ZeroHash, &model.UnmappedMissingCommitError{ID: id}
	}
	return sub, nil
}

func (r *Resolver) record(m *model.MappedCommit) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.mapping.Add(m)
}

// Lookup returns the image of a commit that was already resolved.
func (r *Resolver) Lookup(h model.History, id plumbing.Hash) (plumbing.Hash, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.mapping.Image(h, id)
}

// Mapping must not be called while commits are still being resolved.
func (r *Resolver) Mapping() *model.RewriteMapping {
	return r.mapping
}

func (r *Resolver) Stats() Stats {
	return Stats{
		Superproject: int(r.superproject.Load()),
		Submodule:    int(r.submodule.Load()),
		Substituted:  int(r.substituted.Load()),
	}
}

func (r *Resolver) MountPath() string {
	return r.mountPath
}

func (r *Resolver) TreeMerger() *TreeMerger {
	return r.merger
}
