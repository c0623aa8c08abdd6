package model

import (
	"github.com/go-git/go-git/v5/plumbing"
)

// CommitKey identifies an original commit. The same hash can, in theory, show up in both histories,
// so the history tag is part of the identity.
type CommitKey struct {
	History History
	ID      plumbing.Hash
}

func NewCommitKey(h History, id plumbing.Hash) CommitKey {
	return CommitKey{History: h, ID: id}
}

func (k CommitKey) String() string {
	return k.History.String() + ":" + k.ID.String()
}
