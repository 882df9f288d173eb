// Package stages ships the small set of built-in processors exercised by
// the engine's end-to-end test scenarios (spec.md §8): identity, upper,
// tagger, splitter, a stateful line counter, and a diagnostic looper for
// the hop-limit scenario. These are test fixtures, not a business
// processor library — the spec treats concrete processors as an external
// collaborator, but a registry with nothing registered in it cannot
// exercise the engine at all.
package stages

import (
	"strconv"
	"strings"

	"github.com/tagflow/tagflow/internal/registry"
)

func init() {
	registry.Default.Register("builtin.Identity", func() (registry.Stage, error) {
		return registry.StageFunc(func(line string) ([]registry.Emission, error) {
			return []registry.Emission{{Tags: []registry.Tag{registry.End}, Line: line}}, nil
		}), nil
	})

	registry.Default.Register("builtin.Upper", registry.FromFunc(registry.End, func(line string) (string, error) {
		return strings.ToUpper(line), nil
	}))

	registry.Default.Register("builtin.Tagger", func() (registry.Stage, error) {
		return NewTagger(), nil
	})

	registry.Default.Register("builtin.Splitter", func() (registry.Stage, error) {
		return NewSplitter(",", registry.End), nil
	})

	registry.Default.Register("builtin.LineCounter", func() (registry.Stage, error) {
		return NewLineCounter(registry.End), nil
	})

	registry.Default.Register("builtin.Looper", func() (registry.Stage, error) {
		return registry.StageFunc(func(line string) ([]registry.Emission, error) {
			return []registry.Emission{{Tags: []registry.Tag{"loop"}, Line: line}}, nil
		}), nil
	})
}

// Tagger routes a line to "error" if it contains the substring ERROR, to
// "warn" if it contains WARN, else to "info" — grounded on the original
// Python Tagger processor, adapted to the tag names used by spec.md's
// tagger-split scenario (§8 scenario 1: error/info).
type Tagger struct{}

func NewTagger() *Tagger { return &Tagger{} }

func (t *Tagger) Process(line string) ([]registry.Emission, error) {
	var tag registry.Tag
	switch {
	case strings.Contains(line, "ERROR"):
		tag = "error"
	case strings.Contains(line, "WARN"):
		tag = "warn"
	default:
		tag = "info"
	}
	return []registry.Emission{{Tags: []registry.Tag{tag}, Line: line}}, nil
}

// Splitter fans a single line out into one emission per delimited,
// trimmed token (spec.md §8 scenario 3).
type Splitter struct {
	delimiter string
	tag       registry.Tag
}

func NewSplitter(delimiter string, tag registry.Tag) *Splitter {
	return &Splitter{delimiter: delimiter, tag: tag}
}

func (s *Splitter) Process(line string) ([]registry.Emission, error) {
	parts := strings.Split(line, s.delimiter)
	out := make([]registry.Emission, 0, len(parts))
	for _, p := range parts {
		out = append(out, registry.Emission{Tags: []registry.Tag{s.tag}, Line: strings.TrimSpace(p)})
	}
	return out, nil
}

// LineCounter is a stateful stage prefixing each line with a per-instance
// running count, used to verify metrics isolation between two node tags
// sharing the same processor type (spec.md §8 scenario 6).
type LineCounter struct {
	tag   registry.Tag
	count int
}

func NewLineCounter(tag registry.Tag) *LineCounter {
	return &LineCounter{tag: tag}
}

func (c *LineCounter) Process(line string) ([]registry.Emission, error) {
	c.count++
	return []registry.Emission{{
		Tags: []registry.Tag{c.tag},
		Line: strconv.Itoa(c.count) + ": " + line,
	}}, nil
}

// Count returns the number of lines this instance has processed so far.
func (c *LineCounter) Count() int { return c.count }
