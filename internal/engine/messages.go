package engine

import (
	"fmt"
	"strings"
	"sync"
)

// Messages collects the diagnostics of one scan. Safe for concurrent use.
type Messages struct {
	mu       sync.Mutex
	messages []string
	warnings []string
	errors   []string
}

func (m *Messages) info(format string, args ...any) {
	m.add(&m.messages, format, args...)
}

func (m *Messages) warn(format string, args ...any) {
	m.add(&m.warnings, format, args...)
}

func (m *Messages) fail(format string, args ...any) {
	m.add(&m.errors, format, args...)
}

func (m *Messages) add(list *[]string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.mu.Lock()
	*list = append(*list, msg)
	m.mu.Unlock()
}

// Warnings returns a copy of the collected warnings
func (m *Messages) Warnings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.warnings...)
}

// Errors returns a copy of the collected errors
func (m *Messages) Errors() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

// Text renders every message, one section per kind. Empty sections are
// left out; a clean scan renders as "".
func (m *Messages) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s - %d\n", title, len(lines))
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}
	section("Errors", m.errors)
	section("Warnings", m.warnings)
	section("Messages", m.messages)
	return b.String()
}
