package rewrite

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bloomberg/go-testgroup"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/pescuma/submerge/lib/objstore"
)

type gitlink plumbing.Hash

type fixture struct {
	t      *testgroup.T
	storer *memory.Storage
	store  *objstore.Store
	when   time.Time
}

func newFixture(t *testgroup.T) *fixture {
	storer := memory.NewStorage()
	return &fixture{
		t:      t,
		storer: storer,
		store:  objstore.New(storer),
		when:   time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) blob(content string) plumbing.Hash {
	h, err := f.store.WriteBlob([]byte(content))
	f.t.Require.NoError(err)
	return h
}

// tree builds a tree from paths. Values are either file contents (string) or gitlinks.
func (f *fixture) tree(files map[string]any) plumbing.Hash {
	children := map[string]map[string]any{}
	var entries []object.TreeEntry

	for p, v := range files {
		name, rest, nested := strings.Cut(p, "/")
		if nested {
			if children[name] == nil {
				children[name] = map[string]any{}
			}
			children[name][rest] = v
			continue
		}

		switch v := v.(type) {
		case string:
			entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: f.blob(v)})
		case gitlink:
			entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Submodule, Hash: plumbing.Hash(v)})
		default:
			panic(fmt.Sprintf("unknown entry type %T", v))
		}
	}

	for name, c := range children {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: f.tree(c)})
	}

	sortEntries(entries)

	h, err := f.store.WriteTree(&object.Tree{Entries: entries})
	f.t.Require.NoError(err)
	return h
}

func (f *fixture) commit(tree plumbing.Hash, message string, parents ...plumbing.Hash) plumbing.Hash {
	f.when = f.when.Add(time.Hour)

	sig := object.Signature{Name: "Someone", Email: "someone@example.com", When: f.when}
	h, err := f.store.WriteCommit(&object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	})
	f.t.Require.NoError(err)
	return h
}

func (f *fixture) branch(name string, tip plumbing.Hash) {
	err := f.storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), tip))
	f.t.Require.NoError(err)
}

func (f *fixture) branchTip(name string) plumbing.Hash {
	ref, err := f.storer.Reference(plumbing.NewBranchReferenceName(name))
	f.t.Require.NoError(err)
	return ref.Hash()
}

func (f *fixture) loadCommit(id plumbing.Hash) *object.Commit {
	c, err := object.GetCommit(f.storer, id)
	f.t.Require.NoError(err)
	return c
}

// files flattens the tree of a commit. Gitlinks show up as "gitlink:<id>".
func (f *fixture) files(commit plumbing.Hash) map[string]string {
	result := map[string]string{}
	f.collect(f.loadCommit(commit).TreeHash, "", result)
	return result
}

func (f *fixture) collect(tree plumbing.Hash, prefix string, result map[string]string) {
	t, err := f.store.LoadTree(tree)
	f.t.Require.NoError(err)

	for _, e := range t.Entries {
		p := prefix + e.Name
		switch e.Mode {
		case filemode.Dir:
			f.collect(e.Hash, p+"/", result)
		case filemode.Submodule:
			result[p] = "gitlink:" + e.Hash.String()
		default:
			data, err := f.store.LoadBlob(e.Hash)
			f.t.Require.NoError(err)
			result[p] = string(data)
		}
	}
}

// messages returns the first-parent log messages, tip first.
func (f *fixture) messages(tip plumbing.Hash) []string {
	var result []string
	for id := tip; ; {
		c := f.loadCommit(id)
		result = append(result, c.Message)
		if len(c.ParentHashes) == 0 {
			return result
		}
		id = c.ParentHashes[0]
	}
}

func (f *fixture) parentMessages(id plumbing.Hash) []string {
	c := f.loadCommit(id)
	result := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		result = append(result, f.loadCommit(p).Message)
	}
	return result
}

// copyStorer duplicates all objects and refs, so the same history can be rewritten twice.
func (f *fixture) copyStorer() *memory.Storage {
	dst := memory.NewStorage()

	_, err := objstore.Import(dst, f.storer)
	f.t.Require.NoError(err)

	refs, err := f.storer.IterReferences()
	f.t.Require.NoError(err)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		return dst.SetReference(ref)
	})
	f.t.Require.NoError(err)

	return dst
}

func sortedKeys(m map[string]string) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

const gitmodulesSub = "[submodule \"sub\"]\n\tpath = sub\n\turl = https://example.com/sub.git\n"
