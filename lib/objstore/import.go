package objstore

import (
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage"
	"github.com/pkg/errors"
)

// Import copies every object of src that dst doesn't have yet. It is the local replacement of
// fetching the submodule history into the superproject.
func Import(dst, src storage.Storer) (int, error) {
	iter, err := src.IterEncodedObjects(plumbing.AnyObject)
	if err != nil {
		return 0, errors.Wrap(err, "iterating objects")
	}
	defer iter.Close()

	copied := 0
	err = iter.ForEach(func(obj plumbing.EncodedObject) error {
		if dst.HasEncodedObject(obj.Hash()) == nil {
			return nil
		}

		_, err := dst.SetEncodedObject(obj)
		if err != nil {
			return err
		}

		copied++
		return nil
	})
	if err != nil {
		return copied, errors.Wrap(err, "copying objects")
	}

	return copied, nil
}
