package objstore

import (
	"io"
	"sync"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/storage"
	"github.com/pkg/errors"

	"github.com/pescuma/submerge/lib/model"
)

// Store reads and writes git objects and refs of the superproject. Submodule objects must have
// been imported into the same storage (see Import) before they can be loaded.
//
// It never fetches: a commit that is not in the storage is reported as a MissingCommitError.
// go-git storers are not safe for concurrent use, so every call is serialized.
type Store struct {
	mutex sync.Mutex
	s     storage.Storer
}

func New(s storage.Storer) *Store {
	return &Store{s: s}
}

func (s *Store) Storer() storage.Storer {
	return s.s
}

func (s *Store) LoadCommit(h model.History, id plumbing.Hash) (*object.Commit, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, err := object.GetCommit(s.s, id)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return nil, &model.MissingCommitError{History: h, ID: id}
	} else if err != nil {
		return nil, errors.Wrapf(err, "loading %v commit %v", h, id)
	}

	return c, nil
}

func (s *Store) HasCommit(id plumbing.Hash) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.s.EncodedObject(plumbing.CommitObject, id)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}

	return true, nil
}

func (s *Store) LoadTree(id plumbing.Hash) (*object.Tree, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, err := object.GetTree(s.s, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading tree %v", id)
	}

	return t, nil
}

func (s *Store) LoadBlob(id plumbing.Hash) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	b, err := object.GetBlob(s.s, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading blob %v", id)
	}

	r, err := b.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}

func (s *Store) WriteCommit(c *object.Commit) (plumbing.Hash, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	obj := s.s.NewEncodedObject()
	if err := c.Encode(obj); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "encoding commit")
	}

	return s.set(obj)
}

func (s *Store) WriteTree(t *object.Tree) (plumbing.Hash, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	obj := s.s.NewEncodedObject()
	if err := t.Encode(obj); err != nil {
		return plumbing.ZeroHash, errors.Wrap(err, "encoding tree")
	}

	return s.set(obj)
}

func (s *Store) WriteBlob(data []byte) (plumbing.Hash, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	obj := s.s.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	_, err = w.Write(data)
	if err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, errors.Wrap(err, "writing blob")
	}

	err = w.Close()
	if err != nil {
		return plumbing.ZeroHash, err
	}

	return s.set(obj)
}

// set skips objects that already exist, which happens a lot with content addressed rewrites.
func (s *Store) set(obj plumbing.EncodedObject) (plumbing.Hash, error) {
	if s.s.HasEncodedObject(obj.Hash()) == nil {
		return obj.Hash(), nil
	}

	h, err := s.s.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, errors.Wrapf(err, "storing %v", obj.Type())
	}

	return h, nil
}

func (s *Store) ListBranches() (*model.BranchSet, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	refs, err := s.s.IterReferences()
	if err != nil {
		return nil, errors.Wrap(err, "listing references")
	}
	defer refs.Close()

	var branches []*model.Branch
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if !ref.Name().IsBranch() {
			return nil
		}

		resolved, err := storer.ResolveReference(s.s, ref.Name())
		if err != nil {
			return errors.Wrapf(err, "resolving %v", ref.Name())
		}

		branches = append(branches, model.NewBranch(ref.Name(), resolved.Hash()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortBranches(branches)

	return model.NewBranchSet(branches...), nil
}

// UpdateBranch moves a branch only if it still points to old.
func (s *Store) UpdateBranch(name plumbing.ReferenceName, old, new plumbing.Hash) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	err := s.s.CheckAndSetReference(
		plumbing.NewHashReference(name, new),
		plumbing.NewHashReference(name, old),
	)
	if err != nil {
		return errors.Wrapf(err, "updating %v from %v to %v", name, old, new)
	}

	return nil
}

// Head returns HEAD, without resolving it when it is symbolic.
func (s *Store) Head() (*plumbing.Reference, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	ref, err := s.s.Reference(plumbing.HEAD)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "reading HEAD")
	}

	return ref, nil
}

// SetHead moves a detached HEAD only if it still points to old.
func (s *Store) SetHead(old, new plumbing.Hash) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	err := s.s.CheckAndSetReference(
		plumbing.NewHashReference(plumbing.HEAD, new),
		plumbing.NewHashReference(plumbing.HEAD, old),
	)
	if err != nil {
		return errors.Wrap(err, "updating HEAD")
	}

	return nil
}
