package model

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/samber/lo"
)

// MissingCommitError is returned when a commit can't be loaded and no override covers it.
type MissingCommitError struct {
	History History
	ID      plumbing.Hash
}

func (e *MissingCommitError) Error() string {
	return fmt.Sprintf("missing %v commit %v", e.History, e.ID)
}

// UnmappedMissingCommitError means a commit was flagged as missing but the override table has no
// entry for it. Reaching it is a bug in the caller.
type UnmappedMissingCommitError struct {
	ID plumbing.Hash
}

func (e *UnmappedMissingCommitError) Error() string {
	return fmt.Sprintf("submodule commit %v is missing and has no override", e.ID)
}

type UnexpectedTreeShapeError struct {
	CommitID  plumbing.Hash
	MountPath string
	Reason    string
}

func (e *UnexpectedTreeShapeError) Error() string {
	if e.CommitID.IsZero() {
		return fmt.Sprintf("unexpected tree shape at '%v': %v", e.MountPath, e.Reason)
	}
	return fmt.Sprintf("commit %v: unexpected tree shape at '%v': %v", e.CommitID, e.MountPath, e.Reason)
}

type CyclicHistoryError struct {
	History History
	IDs     []plumbing.Hash
}

func (e *CyclicHistoryError) Error() string {
	ids := lo.Map(e.IDs, func(id plumbing.Hash, _ int) string { return id.String() })
	return fmt.Sprintf("cycle in %v history: %v", e.History, strings.Join(ids, " -> "))
}

// MissingCommitsError aggregates everything a dry run found, so the user can fix all of it at once.
type MissingCommitsError struct {
	Submodule []plumbing.Hash
	Overrides []plumbing.Hash
}

func (e *MissingCommitsError) Error() string {
	var sb strings.Builder
	if len(e.Submodule) > 0 {
		sb.WriteString(fmt.Sprintf("%v submodule commit(s) referenced but not found", len(e.Submodule)))
	}
	if len(e.Overrides) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(fmt.Sprintf("%v override target(s) not found", len(e.Overrides)))
	}
	return sb.String()
}

func (e *MissingCommitsError) Empty() bool {
	return len(e.Submodule) == 0 && len(e.Overrides) == 0
}
