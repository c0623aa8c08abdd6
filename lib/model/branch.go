package model

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
)

type BranchState int

const (
	BranchUnvisited BranchState = iota
	BranchWalking
	BranchResolved
	BranchMigrated
)

func (s BranchState) String() string {
	switch s {
	case BranchUnvisited:
		return "unvisited"
	case BranchWalking:
		return "walking"
	case BranchResolved:
		return "resolved"
	case BranchMigrated:
		return "migrated"
	default:
		return "unknown"
	}
}

func ParseBranchState(s string) (BranchState, error) {
	for _, state := range []BranchState{BranchUnvisited, BranchWalking, BranchResolved, BranchMigrated} {
		if state.String() == s {
			return state, nil
		}
	}
	return BranchUnvisited, fmt.Errorf("unknown branch state: %v", s)
}

type Branch struct {
	Name   plumbing.ReferenceName
	Tip    plumbing.Hash
	NewTip plumbing.Hash
	State  BranchState
}

func NewBranch(name plumbing.ReferenceName, tip plumbing.Hash) *Branch {
	return &Branch{
		Name:  name,
		Tip:   tip,
		State: BranchUnvisited,
	}
}

func (b *Branch) ShortName() string {
	return b.Name.Short()
}

// BranchSet keeps the branches in the order they were added.
type BranchSet struct {
	branches []*Branch
	byName   map[plumbing.ReferenceName]*Branch
}

func NewBranchSet(branches ...*Branch) *BranchSet {
	result := &BranchSet{
		byName: map[plumbing.ReferenceName]*Branch{},
	}
	for _, b := range branches {
		result.Add(b)
	}
	return result
}

func (s *BranchSet) Add(b *Branch) {
	if _, ok := s.byName[b.Name]; ok {
		return
	}

	s.branches = append(s.branches, b)
	s.byName[b.Name] = b
}

func (s *BranchSet) Get(name plumbing.ReferenceName) *Branch {
	return s.byName[name]
}

func (s *BranchSet) List() []*Branch {
	return s.branches
}

func (s *BranchSet) Len() int {
	return len(s.branches)
}

// Filter keeps only the named branches. Names can be short ("main") or full ("refs/heads/main").
func (s *BranchSet) Filter(names []string) (*BranchSet, []string) {
	if len(names) == 0 {
		return s, nil
	}

	result := NewBranchSet()
	var unknown []string
	for _, n := range names {
		b := s.Get(plumbing.ReferenceName(n))
		if b == nil {
			b = s.Get(plumbing.NewBranchReferenceName(n))
		}
		if b == nil {
			unknown = append(unknown, n)
			continue
		}
		result.Add(b)
	}

	return result, unknown
}
