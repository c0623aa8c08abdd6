package rewrite

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/pescuma/submerge/lib/model"
)

// ObjectStore is everything the rewrite needs from the object database. LoadCommit must fail with
// a *model.MissingCommitError when the commit is not present, and must never try to fetch it.
type ObjectStore interface {
	LoadCommit(h model.History, id plumbing.Hash) (*object.Commit, error)
	HasCommit(id plumbing.Hash) (bool, error)
	LoadTree(id plumbing.Hash) (*object.Tree, error)
	LoadBlob(id plumbing.Hash) ([]byte, error)

	WriteCommit(c *object.Commit) (plumbing.Hash, error)
	WriteTree(t *object.Tree) (plumbing.Hash, error)
	WriteBlob(data []byte) (plumbing.Hash, error)

	ListBranches() (*model.BranchSet, error)
	UpdateBranch(name plumbing.ReferenceName, old, new plumbing.Hash) error
	Head() (*plumbing.Reference, error)
	SetHead(old, new plumbing.Hash) error
}
