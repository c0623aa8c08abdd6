package model

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/samber/lo"
)

type MappedCommit struct {
	History  History
	Original plumbing.Hash
	New      plumbing.Hash

	// SubstitutedBy is set when Original could not be loaded and the image was taken from the
	// override table entry it points to.
	SubstitutedBy plumbing.Hash
}

func (m *MappedCommit) Key() CommitKey {
	return NewCommitKey(m.History, m.Original)
}

func (m *MappedCommit) Substituted() bool {
	return !m.SubstitutedBy.IsZero()
}

// RewriteMapping maps original commits, of both histories, to their rewritten images.
// It is not safe for concurrent writes.
type RewriteMapping struct {
	byKey map[CommitKey]*MappedCommit
}

func NewRewriteMapping() *RewriteMapping {
	return &RewriteMapping{
		byKey: map[CommitKey]*MappedCommit{},
	}
}

func (m *RewriteMapping) Add(c *MappedCommit) {
	m.byKey[c.Key()] = c
}

// Get never defaults: a commit that was not rewritten yet is reported as not found.
func (m *RewriteMapping) Get(h History, id plumbing.Hash) (*MappedCommit, bool) {
	c, ok := m.byKey[NewCommitKey(h, id)]
	return c, ok
}

func (m *RewriteMapping) Image(h History, id plumbing.Hash) (plumbing.Hash, bool) {
	c, ok := m.Get(h, id)
	if !ok {
		return plumbing.ZeroHash, false
	}
	return c.New, true
}

func (m *RewriteMapping) Len() int {
	return len(m.byKey)
}

func (m *RewriteMapping) CountHistory(h History) int {
	return lo.CountBy(lo.Values(m.byKey), func(c *MappedCommit) bool { return c.History == h })
}

// List returns the entries sorted by history and then original id, so output is stable.
func (m *RewriteMapping) List() []*MappedCommit {
	result := lo.Values(m.byKey)
	sort.Slice(result, func(i, j int) bool {
		if result[i].History != result[j].History {
			return result[i].History < result[j].History
		}
		return result[i].Original.String() < result[j].Original.String()
	})
	return result
}
