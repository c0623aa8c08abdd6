package consoles

import (
	"fmt"
	"strings"
	"sync"
)

// Recorder keeps every printed line in memory.
type Recorder struct {
	mutex    sync.Mutex
	prefixes []string
	lines    []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Printf(format string, a ...any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.lines = append(r.lines, strings.Join(r.prefixes, "")+fmt.Sprintf(format, a...))
}

func (r *Recorder) PushPrefix(format string, a ...any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.prefixes = append(r.prefixes, fmt.Sprintf(format, a...))
}

func (r *Recorder) PopPrefix() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.prefixes) > 0 {
		r.prefixes = r.prefixes[:len(r.prefixes)-1]
	}
}

func (r *Recorder) Lines() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	result := make([]string, len(r.lines))
	copy(result, r.lines)
	return result
}
