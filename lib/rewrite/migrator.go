package rewrite

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/hashicorp/go-set/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"

	"github.com/pescuma/submerge/lib/consoles"
	"github.com/pescuma/submerge/lib/model"
	"github.com/pescuma/submerge/lib/utils"
)

type Options struct {
	MountPath string
	Overrides *model.OverrideTable

	// Branches limits the migration to these branches. Empty means all local branches.
	Branches []string

	Workers  int
	Progress bool
}

type HeadUpdate struct {
	Old plumbing.Hash
	New plumbing.Hash
}

type Result struct {
	Branches *model.BranchSet
	Head     *HeadUpdate
	Mapping  *model.RewriteMapping
	Stats    Stats
}

type Migrator struct {
	store   ObjectStore
	console consoles.Console
	opts    Options
}

func NewMigrator(store ObjectStore, console consoles.Console, opts Options) (*Migrator, error) {
	mountPath, err := CleanMountPath(opts.MountPath)
	if err != nil {
		return nil, err
	}
	opts.MountPath = mountPath

	if opts.Overrides == nil {
		opts.Overrides = model.NewOverrideTable()
	}

	return &Migrator{
		store:   store,
		console: console,
		opts:    opts,
	}, nil
}

// Migrate rewrites every branch and then moves the refs. Refs are only touched after all branches
// were rewritten, and refs moved before a failing update are restored.
func (m *Migrator) Migrate() (*Result, error) {
	branches, err := m.branches()
	if err != nil {
		return nil, err
	}

	resolver, err := NewResolver(m.store, m.opts.MountPath, m.opts.Overrides, m.opts.Workers)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if m.opts.Progress {
		bar = utils.NewProgressBar(-1)
		resolver.onResolved = func(n int) { _ = bar.Add(n) }
	}

	for _, b := range branches.List() {
		b.State = model.BranchWalking

		m.console.Printf("Rewriting branch %v (%v)\n", b.ShortName(), b.Tip)

		b.NewTip, err = resolver.ResolveTip(model.Superproject, b.Tip)
		if err != nil {
			return nil, errors.Wrapf(err, "rewriting branch %v", b.ShortName())
		}

		b.State = model.BranchResolved
	}

	head, err := m.resolveHead(resolver)
	if err != nil {
		return nil, err
	}

	if bar != nil {
		_ = bar.Finish()
	}

	stats := resolver.Stats()
	m.console.Printf("Rewrote %v superproject and %v submodule commits (%v substituted)\n",
		stats.Superproject, stats.Submodule, stats.Substituted)

	err = m.moveRefs(branches, head)
	if err != nil {
		return nil, err
	}

	return &Result{
		Branches: branches,
		Head:     head,
		Mapping:  resolver.Mapping(),
		Stats:    stats,
	}, nil
}

func (m *Migrator) branches() (*model.BranchSet, error) {
	all, err := m.store.ListBranches()
	if err != nil {
		return nil, err
	}

	result, unknown := all.Filter(m.opts.Branches)
	if len(unknown) > 0 {
		return nil, errors.Errorf("unknown branches: %v", unknown)
	}

	return result, nil
}

// resolveHead handles a detached HEAD. A symbolic HEAD follows its branch.
func (m *Migrator) resolveHead(resolver *Resolver) (*HeadUpdate, error) {
	head, err := m.store.Head()
	if err != nil {
		return nil, err
	}
	if head == nil || head.Type() != plumbing.HashReference || head.Hash().IsZero() {
		return nil, nil
	}

	m.console.Printf("Rewriting detached HEAD (%v)\n", head.Hash())

	newHead, err := resolver.ResolveTip(model.Superproject, head.Hash())
	if err != nil {
		return nil, errors.Wrap(err, "rewriting detached HEAD")
	}

	return &HeadUpdate{Old: head.Hash(), New: newHead}, nil
}

func (m *Migrator) moveRefs(branches *model.BranchSet, head *HeadUpdate) error {
	var moved []*model.Branch

	fail := func(err error) error {
		rollbackErr := m.rollback(moved)
		if rollbackErr != nil {
			return errors.Wrapf(err, "restoring branches also failed: %v", rollbackErr)
		}
		return err
	}

	for _, b := range branches.List() {
		err := m.store.UpdateBranch(b.Name, b.Tip, b.NewTip)
		if err != nil {
			return fail(err)
		}

		b.State = model.BranchMigrated
		moved = append(moved, b)

		m.console.Printf("Moved %v: %v -> %v\n", b.ShortName(), b.Tip, b.NewTip)
	}

	if head != nil {
		err := m.store.SetHead(head.Old, head.New)
		if err != nil {
			return fail(err)
		}
	}

	return nil
}

func (m *Migrator) rollback(moved []*model.Branch) error {
	var errs []error
	for i := len(moved) - 1; i >= 0; i-- {
		b := moved[i]

		err := m.store.UpdateBranch(b.Name, b.NewTip, b.Tip)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		b.State = model.BranchResolved
	}

	if len(errs) > 0 {
		return errors.Errorf("%v", lo.Map(errs, func(e error, _ int) string { return e.Error() }))
	}
	return nil
}

// FindMissing lists, without writing anything, every submodule commit the branches need that is
// neither in the store nor covered by an override, and every override target that is not in the
// store.
func (m *Migrator) FindMissing() (*model.MissingCommitsError, error) {
	branches, err := m.branches()
	if err != nil {
		return nil, err
	}

	tips := lo.Map(branches.List(), func(b *model.Branch, _ int) plumbing.Hash { return b.Tip })

	walker := NewWalker(m.store, m.opts.Overrides, nil)
	nodes, err := walker.WalkAll(model.Superproject, tips)
	if err != nil {
		return nil, err
	}

	merger := NewTreeMerger(m.store)

	var targets []plumbing.Hash
	for _, n := range nodes {
		target, found, err := merger.FindGitlink(n.Commit.TreeHash, m.opts.MountPath)
		if err != nil {
			return nil, withCommit(err, n.ID)
		}
		if found {
			targets = append(targets, target)
		}
	}

	result := &model.MissingCommitsError{}

	result.Submodule, err = m.findMissingSubmoduleCommits(lo.Uniq(targets))
	if err != nil {
		return nil, err
	}

	for _, sub := range m.opts.Overrides.Substitutes() {
		ok, err := m.store.HasCommit(sub)
		if err != nil {
			return nil, err
		}
		if !ok {
			result.Overrides = append(result.Overrides, sub)
		}
	}

	sortHashes(result.Submodule)
	sortHashes(result.Overrides)

	return result, nil
}

func (m *Migrator) findMissingSubmoduleCommits(targets []plumbing.Hash) ([]plumbing.Hash, error) {
	var missing []plumbing.Hash

	visited := set.New[plumbing.Hash](len(targets))
	queue := append([]plumbing.Hash{}, targets...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if visited.Contains(id) {
			continue
		}
		visited.Insert(id)

		ok, err := m.store.HasCommit(id)
		if err != nil {
			return nil, err
		}

		if !ok {
			if sub, found := m.opts.Overrides.Get(id); found {
				queue = append(queue, sub)
			} else {
				missing = append(missing, id)
			}
			continue
		}

		c, err := m.store.LoadCommit(model.Submodule, id)
		if err != nil {
			return nil, err
		}
		queue = append(queue, c.ParentHashes...)
	}

	return missing, nil
}

func sortHashes(hs []plumbing.Hash) {
	sort.Slice(hs, func(i, j int) bool { return hs[i].String() < hs[j].String() })
}
