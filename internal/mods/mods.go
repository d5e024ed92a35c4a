package mods

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Mod is a pure transformation of subtitle text
type Mod interface {
	ID() string
	// Exclusive mods rewrite the whole text; at most one runs per pass
	Exclusive() bool
	Order() int
	Apply(content string) string
}

var registry = map[string]Mod{}

func register(m Mod) {
	registry[m.ID()] = m
}

// Available lists registered mod identifiers in application order
func Available() []string {
	mods := make([]Mod, 0, len(registry))
	for _, m := range registry {
		mods = append(mods, m)
	}
	sortMods(mods)
	ids := make([]string, len(mods))
	for i, m := range mods {
		ids[i] = m.ID()
	}
	return ids
}

// Pipeline applies a configured list of mods in order
type Pipeline struct {
	mods   []Mod
	logger *logrus.Logger
}

// NewPipeline builds a pipeline from mod identifiers. Unknown identifiers are an error.
func NewPipeline(ids []string, logger *logrus.Logger) (*Pipeline, error) {
	seen := make(map[string]bool)
	var selected []Mod
	for _, id := range ids {
		id = strings.TrimSpace(strings.ToLower(id))
		if id == "" || seen[id] {
			continue
		}
		m, ok := registry[id]
		if !ok {
			return nil, fmt.Errorf("unknown subtitle mod %q (available: %s)", id, strings.Join(Available(), ", "))
		}
		seen[id] = true
		selected = append(selected, m)
	}
	sortMods(selected)

	// Only the first exclusive mod in order survives
	var mods []Mod
	exclusive := ""
	for _, m := range selected {
		if m.Exclusive() {
			if exclusive != "" {
				logger.WithFields(logrus.Fields{
					"mod":     m.ID(),
					"applied": exclusive,
				}).Warn("Skipping exclusive subtitle mod, another exclusive mod is configured")
				continue
			}
			exclusive = m.ID()
		}
		mods = append(mods, m)
	}

	return &Pipeline{mods: mods, logger: logger}, nil
}

// IDs returns the mods that will run, in order
func (p *Pipeline) IDs() []string {
	ids := make([]string, len(p.mods))
	for i, m := range p.mods {
		ids[i] = m.ID()
	}
	return ids
}

// Apply runs every mod over the content. Content without SRT cues is
// returned unchanged.
func (p *Pipeline) Apply(content []byte) []byte {
	if p == nil || len(p.mods) == 0 {
		return content
	}
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	if !strings.Contains(text, "-->") {
		return content
	}
	for _, m := range p.mods {
		text = m.Apply(text)
	}
	return []byte(text)
}

func sortMods(mods []Mod) {
	sort.SliceStable(mods, func(i, j int) bool {
		if mods[i].Order() != mods[j].Order() {
			return mods[i].Order() < mods[j].Order()
		}
		return mods[i].ID() < mods[j].ID()
	})
}

// cue is one SRT block: index line, timing line, text lines
type cue struct {
	timing string
	lines  []string
}

func parseCues(content string) []cue {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	var cues []cue
	for _, block := range strings.Split(trimmed, "\n\n") {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		start := 0
		if start < len(lines) && isNumeric(lines[start]) {
			start++
		}
		if start >= len(lines) || !strings.Contains(lines[start], "-->") {
			continue
		}
		c := cue{timing: strings.TrimSpace(lines[start])}
		for _, line := range lines[start+1:] {
			c.lines = append(c.lines, strings.TrimRight(line, " \t"))
		}
		cues = append(cues, c)
	}
	return cues
}

// formatCues renumbers cues and drops those left without text
func formatCues(cues []cue) string {
	var b strings.Builder
	n := 0
	for _, c := range cues {
		var text []string
		for _, line := range c.lines {
			if strings.TrimSpace(line) != "" {
				text = append(text, line)
			}
		}
		if len(text) == 0 {
			continue
		}
		n++
		if n > 1 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(n))
		b.WriteString("\n")
		b.WriteString(c.timing)
		b.WriteString("\n")
		b.WriteString(strings.Join(text, "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

// mapLines applies fn to every text line of every cue
func mapLines(content string, fn func(string) string) string {
	cues := parseCues(content)
	for i := range cues {
		for j, line := range cues[i].lines {
			cues[i].lines[j] = fn(line)
		}
	}
	return formatCues(cues)
}

func isNumeric(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	_, err := strconv.Atoi(value)
	return err == nil
}
