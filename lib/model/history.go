package model

import "fmt"

// History tells which of the two commit graphs a commit id belongs to.
type History int

const (
	Superproject History = iota
	Submodule
)

func (h History) String() string {
	switch h {
	case Superproject:
		return "superproject"
	case Submodule:
		return "submodule"
	default:
		return fmt.Sprintf("history(%d)", int(h))
	}
}

func ParseHistory(s string) (History, error) {
	switch s {
	case "superproject":
		return Superproject, nil
	case "submodule":
		return Submodule, nil
	default:
		return 0, fmt.Errorf("unknown history: %v", s)
	}
}
