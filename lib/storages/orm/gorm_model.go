package orm

import (
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pkg/errors"

	"github.com/pescuma/submerge/lib/model"
)

type sqlTable interface {
	CacheKey() string
}

type sqlCommitMapping struct {
	History       string `gorm:"primaryKey"`
	Original      string `gorm:"primaryKey"`
	New           string `gorm:"index"`
	SubstitutedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSqlCommitMapping(m *model.MappedCommit) *sqlCommitMapping {
	return &sqlCommitMapping{
		History:       m.History.String(),
		Original:      encodeHash(m.Original),
		New:           encodeHash(m.New),
		SubstitutedBy: encodeHash(m.SubstitutedBy),
	}
}

func (s *sqlCommitMapping) TableName() string {
	return "commit_mappings"
}

func (s *sqlCommitMapping) CacheKey() string {
	return compositeKey(s.History, s.Original)
}

func (s *sqlCommitMapping) ToModel() (*model.MappedCommit, error) {
	h, err := model.ParseHistory(s.History)
	if err != nil {
		return nil, err
	}

	return &model.MappedCommit{
		History:       h,
		Original:      decodeHash(s.Original),
		New:           decodeHash(s.New),
		SubstitutedBy: decodeHash(s.SubstitutedBy),
	}, nil
}

type sqlBranchMigration struct {
	Name   string `gorm:"primaryKey"`
	OldTip string
	NewTip string
	State  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func newSqlBranchMigration(b *model.Branch) *sqlBranchMigration {
	return &sqlBranchMigration{
		Name:   b.Name.String(),
		OldTip: encodeHash(b.Tip),
		NewTip: encodeHash(b.NewTip),
		State:  b.State.String(),
	}
}

func (s *sqlBranchMigration) TableName() string {
	return "branch_migrations"
}

func (s *sqlBranchMigration) CacheKey() string {
	return s.Name
}

func (s *sqlBranchMigration) ToModel() (*model.Branch, error) {
	state, err := model.ParseBranchState(s.State)
	if err != nil {
		return nil, errors.Wrapf(err, "branch %v", s.Name)
	}

	b := model.NewBranch(plumbing.ReferenceName(s.Name), decodeHash(s.OldTip))
	b.NewTip = decodeHash(s.NewTip)
	b.State = state
	return b, nil
}
