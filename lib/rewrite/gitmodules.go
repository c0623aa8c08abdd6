package rewrite

import (
	"bytes"
	"path"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

const gitmodulesFile = ".gitmodules"

// removeSubmoduleSection drops the sections registering a submodule at mountPath. It returns
// keep == false when no submodule remains registered, meaning the file should go away. Content
// that doesn't register mountPath is returned untouched.
func removeSubmoduleSection(data []byte, mountPath string) (result []byte, keep bool, err error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:     true,
		SkipUnrecognizableLines: true,
		InsensitiveKeys:         true,
	}, data)
	if err != nil {
		return nil, false, errors.Wrap(err, "parsing "+gitmodulesFile)
	}

	removed := false
	remaining := 0
	for _, section := range cfg.Sections() {
		name := section.Name()
		if name == ini.DefaultSection {
			continue
		}

		if isSubmoduleSection(name) && samePath(section.Key("path").String(), mountPath) {
			cfg.DeleteSection(name)
			removed = true
			continue
		}

		remaining++
	}

	if remaining == 0 {
		return nil, false, nil
	}
	if !removed {
		return data, true, nil
	}

	var buf bytes.Buffer
	_, err = cfg.WriteTo(&buf)
	if err != nil {
		return nil, false, errors.Wrap(err, "writing "+gitmodulesFile)
	}

	return buf.Bytes(), true, nil
}

// isSubmoduleSection matches the section name case-insensitively, like git. The subsection name
// after it stays case-sensitive, so sections are not loaded with Insensitive.
func isSubmoduleSection(name string) bool {
	kind, _, _ := strings.Cut(name, " ")
	return strings.EqualFold(kind, "submodule")
}

func samePath(a, b string) bool {
	if a == "" {
		return false
	}
	return path.Clean(strings.Trim(a, "/")) == b
}
