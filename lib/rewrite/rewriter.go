package rewrite

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

type Rewriter struct {
	store ObjectStore
}

func NewRewriter(store ObjectStore) *Rewriter {
	return &Rewriter{store: store}
}

// Rewrite stores a copy of original with new parents and tree. Author, committer and message are
// kept verbatim; the signature is dropped because it would no longer verify.
func (r *Rewriter) Rewrite(original *object.Commit, parents []plumbing.Hash, tree plumbing.Hash) (plumbing.Hash, error) {
	c := &object.Commit{
		Author:       original.Author,
		Committer:    original.Committer,
		Message:      original.Message,
		Encoding:     original.Encoding,
		TreeHash:     tree,
		ParentHashes: lo.Uniq(parents),
	}

	id, err := r.store.WriteCommit(c)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "rewriting commit %v", original.Hash)
	}

	return id, nil
}
