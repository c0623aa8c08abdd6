package orm

import (
	"github.com/go-git/go-git/v5/plumbing"
)

func encodeHash(h plumbing.Hash) string {
	if h.IsZero() {
		return ""
	}
	return h.String()
}

func decodeHash(s string) plumbing.Hash {
	if s == "" {
		return plumbing.ZeroHash
	}
	return plumbing.NewHash(s)
}
