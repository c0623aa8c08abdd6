package rewrite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"

	"github.com/pescuma/submerge/lib/caches"
	"github.com/pescuma/submerge/lib/model"
)

type mergeKey struct {
	super     plumbing.Hash
	sub       plumbing.Hash
	mountPath string
}

type pathKey struct {
	id        plumbing.Hash
	mountPath string
}

// TreeMerger builds the trees of the rewritten history. All operations are pure functions of
// their arguments, so results are cached.
type TreeMerger struct {
	store      ObjectStore
	merged     caches.Cache[mergeKey, plumbing.Hash]
	mounted    caches.Cache[pathKey, plumbing.Hash]
	gitlinks   caches.Cache[pathKey, plumbing.Hash]
	gitmodules caches.Cache[pathKey, plumbing.Hash]
}

func NewTreeMerger(store ObjectStore) *TreeMerger {
	return &TreeMerger{
		store:      store,
		merged:     caches.NewLFU[mergeKey, plumbing.Hash](),
		mounted:    caches.NewLFU[pathKey, plumbing.Hash](),
		gitlinks:   caches.NewLFU[pathKey, plumbing.Hash](),
		gitmodules: caches.NewUnlimited[pathKey, plumbing.Hash](),
	}
}

// FindGitlink returns the commit recorded by the gitlink at mountPath. found is false when
// nothing is there.
func (m *TreeMerger) FindGitlink(tree plumbing.Hash, mountPath string) (target plumbing.Hash, found bool, err error) {
	mountPath, err = CleanMountPath(mountPath)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	target, err = m.gitlinks.Get(pathKey{tree, mountPath}, m.findGitlink)
	if err != nil {
		return plumbing.ZeroHash, false, err
	}

	return target, !target.IsZero(), nil
}

func (m *TreeMerger) findGitlink(key pathKey) (plumbing.Hash, error) {
	segments := strings.Split(key.mountPath, "/")

	current := key.id
	for i, segment := range segments {
		tree, err := m.store.LoadTree(current)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		e, ok := findEntry(tree.Entries, segment)
		if !ok {
			return plumbing.ZeroHash, nil
		}

		if i == len(segments)-1 {
			if e.Mode != filemode.Submodule {
				return plumbing.ZeroHash, shapeError(key.mountPath, "expected a gitlink, found %v", describeMode(e.Mode))
			}
			return e.Hash, nil
		}

		if e.Mode != filemode.Dir {
			return plumbing.ZeroHash, shapeError(key.mountPath, "'%v' is a %v", strings.Join(segments[:i+1], "/"), describeMode(e.Mode))
		}
		current = e.Hash
	}

	return plumbing.ZeroHash, nil
}

// MergeTree returns superTree with the gitlink at mountPath replaced by subTree (or removed when
// subTree is zero) and the submodule registration dropped from .gitmodules.
func (m *TreeMerger) MergeTree(superTree, subTree plumbing.Hash, mountPath string) (plumbing.Hash, error) {
	mountPath, err := CleanMountPath(mountPath)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	return m.merged.Get(mergeKey{superTree, subTree, mountPath}, m.merge)
}

func (m *TreeMerger) merge(key mergeKey) (plumbing.Hash, error) {
	root, err := m.store.LoadTree(key.super)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	entries := cloneEntries(root.Entries)

	entries, err = m.dropRegistration(entries, key.mountPath)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	entries, replaced, err := m.replace(entries, strings.Split(key.mountPath, "/"), key.sub, key.mountPath)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	if !replaced && !key.sub.IsZero() {
		return plumbing.ZeroHash, shapeError(key.mountPath, "no gitlink to replace")
	}

	return m.writeTree(entries)
}

func (m *TreeMerger) replace(entries []object.TreeEntry, segments []string, sub plumbing.Hash, mountPath string) ([]object.TreeEntry, bool, error) {
	i := indexOfEntry(entries, segments[0])
	if i < 0 {
		return entries, false, nil
	}

	e := entries[i]

	if len(segments) == 1 {
		if e.Mode != filemode.Submodule {
			return nil, false, shapeError(mountPath, "expected a gitlink, found %v", describeMode(e.Mode))
		}

		if sub.IsZero() {
			return removeEntry(entries, i), true, nil
		}

		entries[i] = object.TreeEntry{Name: e.Name, Mode: filemode.Dir, Hash: sub}
		return entries, true, nil
	}

	if e.Mode != filemode.Dir {
		return nil, false, shapeError(mountPath, "'%v' is a %v", e.Name, describeMode(e.Mode))
	}

	child, err := m.store.LoadTree(e.Hash)
	if err != nil {
		return nil, false, err
	}

	childEntries, replaced, err := m.replace(cloneEntries(child.Entries), segments[1:], sub, mountPath)
	if err != nil || !replaced {
		return entries, false, err
	}

	if len(childEntries) == 0 {
		return removeEntry(entries, i), true, nil
	}

	h, err := m.writeTree(childEntries)
	if err != nil {
		return nil, false, err
	}

	entries[i].Hash = h
	return entries, true, nil
}

func (m *TreeMerger) dropRegistration(entries []object.TreeEntry, mountPath string) ([]object.TreeEntry, error) {
	i := indexOfEntry(entries, gitmodulesFile)
	if i < 0 || !entries[i].Mode.IsFile() {
		return entries, nil
	}

	h, err := m.gitmodules.Get(pathKey{entries[i].Hash, mountPath}, func(key pathKey) (plumbing.Hash, error) {
		data, err := m.store.LoadBlob(key.id)
		if err != nil {
			return plumbing.ZeroHash, err
		}

		result, keep, err := removeSubmoduleSection(data, key.mountPath)
		if err != nil {
			return plumbing.ZeroHash, errors.Wrapf(err, "blob %v", key.id)
		}
		if !keep {
			return plumbing.ZeroHash, nil
		}

		return m.store.WriteBlob(result)
	})
	if err != nil {
		return nil, err
	}

	if h.IsZero() {
		return removeEntry(entries, i), nil
	}

	entries[i].Hash = h
	return entries, nil
}

// Mount returns a tree that only contains subTree at mountPath.
func (m *TreeMerger) Mount(subTree plumbing.Hash, mountPath string) (plumbing.Hash, error) {
	mountPath, err := CleanMountPath(mountPath)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	return m.mounted.Get(pathKey{subTree, mountPath}, func(key pathKey) (plumbing.Hash, error) {
		segments := strings.Split(key.mountPath, "/")

		result := key.id
		for i := len(segments) - 1; i >= 0; i-- {
			h, err := m.writeTree([]object.TreeEntry{{Name: segments[i], Mode: filemode.Dir, Hash: result}})
			if err != nil {
				return plumbing.ZeroHash, err
			}
			result = h
		}

		return result, nil
	})
}

func (m *TreeMerger) writeTree(entries []object.TreeEntry) (plumbing.Hash, error) {
	sortEntries(entries)
	return m.store.WriteTree(&object.Tree{Entries: entries})
}

// sortEntries uses git ordering, where a directory sorts as if its name ended with a slash.
func sortEntries(entries []object.TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return sortName(entries[i]) < sortName(entries[j])
	})
}

func sortName(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

func findEntry(entries []object.TreeEntry, name string) (object.TreeEntry, bool) {
	i := indexOfEntry(entries, name)
	if i < 0 {
		return object.TreeEntry{}, false
	}
	return entries[i], true
}

func indexOfEntry(entries []object.TreeEntry, name string) int {
	for i, e := range entries {
		if e.Name == name {
			return i
		}
	}
	return -1
}

func removeEntry(entries []object.TreeEntry, i int) []object.TreeEntry {
	return append(entries[:i], entries[i+1:]...)
}

func cloneEntries(entries []object.TreeEntry) []object.TreeEntry {
	result := make([]object.TreeEntry, len(entries))
	copy(result, entries)
	return result
}

func describeMode(mode filemode.FileMode) string {
	switch mode {
	case filemode.Dir:
		return "directory"
	case filemode.Submodule:
		return "gitlink"
	case filemode.Symlink:
		return "symlink"
	default:
		return "file"
	}
}

func shapeError(mountPath string, format string, args ...any) error {
	return &model.UnexpectedTreeShapeError{
		MountPath: mountPath,
		Reason:    fmt.Sprintf(format, args...),
	}
}

// withCommit attaches the commit being rewritten to a tree shape error.
func withCommit(err error, commit plumbing.Hash) error {
	var shape *model.UnexpectedTreeShapeError
	if errors.As(err, &shape) && shape.CommitID.IsZero() {
		return &model.UnexpectedTreeShapeError{
			CommitID:  commit,
			MountPath: shape.MountPath,
			Reason:    shape.Reason,
		}
	}
	return err
}
