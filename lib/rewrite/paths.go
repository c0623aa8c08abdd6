package rewrite

import (
	"path"
	"strings"

	"github.com/pkg/errors"
)

// CleanMountPath normalizes a submodule path to the form used in trees and .gitmodules
// ("libs/foo", no leading or trailing slash).
func CleanMountPath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return "", errors.New("submodule path must not be empty")
	}

	p = path.Clean(p)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", errors.Errorf("invalid submodule path: %v", p)
	}

	for _, s := range strings.Split(p, "/") {
		if s == ".git" {
			return "", errors.Errorf("invalid submodule path: %v", p)
		}
	}

	return p, nil
}

func splitMountPath(p string) ([]string, error) {
	p, err := CleanMountPath(p)
	if err != nil {
		return nil, err
	}

	return strings.Split(p, "/"), nil
}
