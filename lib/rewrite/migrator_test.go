package rewrite

import (
	"testing"

	"github.com/bloomberg/go-testgroup"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/pescuma/submerge/lib/consoles"
	"github.com/pescuma/submerge/lib/model"
	"github.com/pescuma/submerge/lib/objstore"
)

func TestMigrator(t *testing.T) {
	testgroup.RunInParallel(t, &MigratorTests{})
}

type MigratorTests struct {
}

type linearHistory struct {
	s1, s2     plumbing.Hash
	c1, c2, c3 plumbing.Hash
}

// createLinear builds three superproject commits. The submodule shows up in the second one.
func (g *MigratorTests) createLinear(f *fixture) linearHistory {
	var h linearHistory

	h.s1 = f.commit(f.tree(map[string]any{"a.txt": "a1"}), "s1")
	h.s2 = f.commit(f.tree(map[string]any{"a.txt": "a2", "b.txt": "b"}), "s2", h.s1)

	h.c1 = f.commit(f.tree(map[string]any{"README": "r1"}), "c1")
	h.c2 = f.commit(f.tree(map[string]any{"README": "r1", ".gitmodules": gitmodulesSub, "sub": gitlink(h.s1)}), "c2", h.c1)
	h.c3 = f.commit(f.tree(map[string]any{"README": "r2", ".gitmodules": gitmodulesSub, "sub": gitlink(h.s2)}), "c3", h.c2)

	f.branch("main", h.c3)

	return h
}

func (g *MigratorTests) migrate(f *fixture, opts Options) (*Result, error) {
	if opts.MountPath == "" {
		opts.MountPath = "sub"
	}

	m, err := NewMigrator(f.store, consoles.NewNullConsole(), opts)
	f.t.Require.NoError(err)

	return m.Migrate()
}

func (g *MigratorTests) LinearHistory(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)

	result, err := g.migrate(f, Options{})
	t.Require.NoError(err)

	tip := f.branchTip("main")
	t.NotEqual(h.c3, tip)
	t.Equal(model.BranchMigrated, result.Branches.Get(plumbing.NewBranchReferenceName("main")).State)

	t.Equal(3, result.Stats.Superproject)
	t.Equal(2, result.Stats.Submodule)
	t.Equal(0, result.Stats.Substituted)
	t.Equal(5, result.Mapping.Len())

	t.Equal([]string{"c3", "c2", "c1"}, f.messages(tip))

	c3 := f.loadCommit(tip)
	c2 := f.loadCommit(c3.ParentHashes[0])
	c1 := f.loadCommit(c2.ParentHashes[0])

	t.Equal(f.loadCommit(h.c1).TreeHash, c1.TreeHash)
	t.Equal(map[string]string{"README": "r1", "sub/a.txt": "a1"}, f.files(c2.Hash))
	t.Equal(map[string]string{"README": "r2", "sub/a.txt": "a2", "sub/b.txt": "b"}, f.files(c3.Hash))

	t.Equal([]string{"c1", "s1"}, f.parentMessages(c2.Hash))
	t.Equal([]string{"c2", "s2"}, f.parentMessages(c3.Hash))

	s2, ok := result.Mapping.Image(model.Submodule, h.s2)
	t.True(ok)
	t.Equal(c3.ParentHashes[1], s2)
	t.Equal(map[string]string{"sub/a.txt": "a2", "sub/b.txt": "b"}, f.files(s2))
	t.Equal([]string{"s1"}, f.parentMessages(s2))
}

func (g *MigratorTests) PreservesMetadata(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)

	result, err := g.migrate(f, Options{})
	t.Require.NoError(err)

	for _, id := range []plumbing.Hash{h.c1, h.c2, h.c3} {
		image, ok := result.Mapping.Image(model.Superproject, id)
		t.True(ok)

		original := f.loadCommit(id)
		rewritten := f.loadCommit(image)
		t.Equal(original.Message, rewritten.Message)
		t.Equal(original.Author.Name, rewritten.Author.Name)
		t.Equal(original.Author.When.Unix(), rewritten.Author.When.Unix())
		t.Equal(original.Committer.When.Unix(), rewritten.Committer.When.Unix())
	}
}

func (g *MigratorTests) SharedAncestryIsRewrittenOnce(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	c3b := f.commit(f.tree(map[string]any{"README": "feature", ".gitmodules": gitmodulesSub, "sub": gitlink(h.s1)}), "c3b", h.c2)
	f.branch("feature", c3b)

	result, err := g.migrate(f, Options{})
	t.Require.NoError(err)

	t.Equal(4, result.Stats.Superproject)
	t.Equal(2, result.Stats.Submodule)

	main := f.loadCommit(f.branchTip("main"))
	feature := f.loadCommit(f.branchTip("feature"))
	t.Equal(main.ParentHashes[0], feature.ParentHashes[0])

	// The pointer didn't change in c3b, so no extra parent.
	t.Equal([]string{"c2"}, f.parentMessages(feature.Hash))
}

func (g *MigratorTests) MissingCommitWithOverride(t *testgroup.T) {
	f := newFixture(t)
	s1 := f.commit(f.tree(map[string]any{"a.txt": "a1"}), "s1")
	missing := plumbing.NewHash("1111111111111111111111111111111111111111")

	c1 := f.commit(f.tree(map[string]any{".gitmodules": gitmodulesSub, "sub": gitlink(missing)}), "c1")
	f.branch("main", c1)

	overrides := model.NewOverrideTable()
	t.Require.NoError(overrides.Set(missing, s1))

	result, err := g.migrate(f, Options{Overrides: overrides})
	t.Require.NoError(err)

	tip := f.branchTip("main")
	t.Equal(map[string]string{"sub/a.txt": "a1"}, f.files(tip))
	t.Equal([]string{"s1"}, f.parentMessages(tip))

	mapped, ok := result.Mapping.Get(model.Submodule, missing)
	t.True(ok)
	t.True(mapped.Substituted())
	t.Equal(s1, mapped.SubstitutedBy)

	s1Image, _ := result.Mapping.Image(model.Submodule, s1)
	t.Equal(s1Image, mapped.New)
	t.Equal(1, result.Stats.Substituted)
}

func (g *MigratorTests) MissingCommitWithDefaultOverride(t *testgroup.T) {
	f := newFixture(t)
	s1 := f.commit(f.tree(map[string]any{"a.txt": "a1"}), "s1")
	missing := plumbing.NewHash("2222222222222222222222222222222222222222")

	c1 := f.commit(f.tree(map[string]any{"sub": gitlink(missing)}), "c1")
	f.branch("main", c1)

	overrides := model.NewOverrideTable()
	overrides.Default = s1

	_, err := g.migrate(f, Options{Overrides: overrides})
	t.Require.NoError(err)

	t.Equal(map[string]string{"sub/a.txt": "a1"}, f.files(f.branchTip("main")))
}

func (g *MigratorTests) MissingCommitWithoutOverride(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	missing := plumbing.NewHash("3333333333333333333333333333333333333333")
	c4 := f.commit(f.tree(map[string]any{"sub": gitlink(missing)}), "c4", h.c3)
	f.branch("main", c4)
	f.branch("other", h.c2)

	_, err := g.migrate(f, Options{})

	var mc *model.MissingCommitError
	t.Require.True(errors.As(err, &mc))
	t.Equal(model.Submodule, mc.History)
	t.Equal(missing, mc.ID)

	t.Equal(c4, f.branchTip("main"))
	t.Equal(h.c2, f.branchTip("other"))
}

func (g *MigratorTests) IsDeterministic(t *testgroup.T) {
	f := newFixture(t)
	g.createLinear(f)
	other := &fixture{t: t, storer: f.copyStorer()}
	other.store = objstore.New(other.storer)

	first, err := g.migrate(f, Options{})
	t.Require.NoError(err)
	second, err := g.migrate(other, Options{})
	t.Require.NoError(err)

	t.Equal(f.branchTip("main"), other.branchTip("main"))
	t.Equal(first.Mapping.List(), second.Mapping.List())
}

func (g *MigratorTests) ParallelMatchesSequential(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	for i, s := range []plumbing.Hash{h.s1, h.s2, h.s1} {
		tip := f.commit(f.tree(map[string]any{"README": string(rune('x' + i)), "sub": gitlink(s)}), "branch", h.c1)
		f.branch(string(rune('x'+i)), tip)
	}

	other := &fixture{t: t, storer: f.copyStorer()}
	other.store = objstore.New(other.storer)

	first, err := g.migrate(f, Options{Workers: 1})
	t.Require.NoError(err)
	second, err := g.migrate(other, Options{Workers: 4})
	t.Require.NoError(err)

	for _, b := range first.Branches.List() {
		t.Equal(b.NewTip, second.Branches.Get(b.Name).NewTip, b.ShortName())
	}
	t.Equal(first.Stats, second.Stats)
}

func (g *MigratorTests) SubmoduleMergeKeepsAllParents(t *testgroup.T) {
	f := newFixture(t)
	s1 := f.commit(f.tree(map[string]any{"a.txt": "1"}), "s1")
	s2a := f.commit(f.tree(map[string]any{"a.txt": "2a"}), "s2a", s1)
	s2b := f.commit(f.tree(map[string]any{"a.txt": "2b"}), "s2b", s1)
	s3 := f.commit(f.tree(map[string]any{"a.txt": "3"}), "s3", s2a, s2b)

	c1 := f.commit(f.tree(map[string]any{"sub": gitlink(s1)}), "c1")
	c2 := f.commit(f.tree(map[string]any{"sub": gitlink(s3)}), "c2", c1)
	f.branch("main", c2)

	result, err := g.migrate(f, Options{})
	t.Require.NoError(err)

	tip := f.branchTip("main")
	t.Equal([]string{"c1", "s3"}, f.parentMessages(tip))

	s3Image, _ := result.Mapping.Image(model.Submodule, s3)
	t.Equal([]string{"s2a", "s2b"}, f.parentMessages(s3Image))
	t.Equal(4, result.Stats.Submodule)
}

func (g *MigratorTests) SuperprojectMergeWithDifferentPointers(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	s3 := f.commit(f.tree(map[string]any{"a.txt": "a3"}), "s3", h.s2)

	side := f.commit(f.tree(map[string]any{"README": "r1", "sub": gitlink(h.s2)}), "side", h.c2)
	merge := f.commit(f.tree(map[string]any{"README": "r2", "sub": gitlink(s3)}), "merge", h.c3, side)
	same := f.commit(f.tree(map[string]any{"README": "r3", "sub": gitlink(h.s2)}), "same", h.c3, side)
	f.branch("main", merge)
	f.branch("same", same)

	_, err := g.migrate(f, Options{})
	t.Require.NoError(err)

	t.Equal([]string{"c3", "side", "s3"}, f.parentMessages(f.branchTip("main")))
	t.Equal([]string{"c3", "side"}, f.parentMessages(f.branchTip("same")))
}

func (g *MigratorTests) SubmoduleRemovedLater(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	c4 := f.commit(f.tree(map[string]any{"README": "r3"}), "c4", h.c3)
	f.branch("main", c4)

	_, err := g.migrate(f, Options{})
	t.Require.NoError(err)

	tip := f.branchTip("main")
	t.Equal(map[string]string{"README": "r3"}, f.files(tip))
	t.Equal([]string{"c3"}, f.parentMessages(tip))
}

func (g *MigratorTests) OnlySelectedBranches(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	f.branch("old", h.c2)

	result, err := g.migrate(f, Options{Branches: []string{"refs/heads/main"}})
	t.Require.NoError(err)

	t.Equal(1, result.Branches.Len())
	t.Equal(h.c2, f.branchTip("old"))
	t.NotEqual(h.c3, f.branchTip("main"))
}

func (g *MigratorTests) UnknownBranchFails(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)

	_, err := g.migrate(f, Options{Branches: []string{"main", "nope"}})

	t.NotNil(err)
	t.Equal(h.c3, f.branchTip("main"))
}

func (g *MigratorTests) DetachedHead(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	t.Require.NoError(f.storer.SetReference(plumbing.NewHashReference(plumbing.HEAD, h.c2)))

	result, err := g.migrate(f, Options{})
	t.Require.NoError(err)

	head, err := f.storer.Reference(plumbing.HEAD)
	t.Require.NoError(err)

	c2, _ := result.Mapping.Image(model.Superproject, h.c2)
	t.Equal(c2, head.Hash())
	t.Equal(h.c2, result.Head.Old)
}

func (g *MigratorTests) RollsBackRefsWhenUpdateFails(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	f.branch("zzz", h.c2)

	store := &failingStore{Store: f.store, failOn: plumbing.NewBranchReferenceName("zzz")}
	m, err := NewMigrator(store, consoles.NewNullConsole(), Options{MountPath: "sub"})
	t.Require.NoError(err)

	_, err = m.Migrate()

	t.NotNil(err)
	t.Equal(h.c3, f.branchTip("main"))
	t.Equal(h.c2, f.branchTip("zzz"))
}

func (g *MigratorTests) UnexpectedTreeShapeNamesCommit(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	c4 := f.commit(f.tree(map[string]any{"sub/a.txt": "plain dir"}), "c4", h.c3)
	f.branch("main", c4)

	_, err := g.migrate(f, Options{})

	var shape *model.UnexpectedTreeShapeError
	t.Require.True(errors.As(err, &shape))
	t.Equal(c4, shape.CommitID)
	t.Equal(c4, f.branchTip("main"))
}

func (g *MigratorTests) FindMissing(t *testgroup.T) {
	f := newFixture(t)
	h := g.createLinear(f)
	missing := plumbing.NewHash("4444444444444444444444444444444444444444")
	covered := plumbing.NewHash("5555555555555555555555555555555555555555")
	absentTarget := plumbing.NewHash("6666666666666666666666666666666666666666")

	c4 := f.commit(f.tree(map[string]any{"sub": gitlink(missing)}), "c4", h.c3)
	c5 := f.commit(f.tree(map[string]any{"sub": gitlink(covered)}), "c5", c4)
	f.branch("main", c5)

	overrides := model.NewOverrideTable()
	t.Require.NoError(overrides.Set(covered, h.s1))
	t.Require.NoError(overrides.Set(plumbing.NewHash("77"), absentTarget))

	m, err := NewMigrator(f.store, consoles.NewNullConsole(), Options{MountPath: "sub", Overrides: overrides})
	t.Require.NoError(err)

	report, err := m.FindMissing()
	t.Require.NoError(err)

	t.Equal([]plumbing.Hash{missing}, report.Submodule)
	t.Equal([]plumbing.Hash{absentTarget}, report.Overrides)
	t.False(report.Empty())
	t.Equal(c5, f.branchTip("main"))
}

type failingStore struct {
	*objstore.Store
	failOn plumbing.ReferenceName
}

func (s *failingStore) UpdateBranch(name plumbing.ReferenceName, old, new plumbing.Hash) error {
	if name == s.failOn {
		return errors.Errorf("refusing to update %v", name)
	}
	return s.Store.UpdateBranch(name, old, new)
}
