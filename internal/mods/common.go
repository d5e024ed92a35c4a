package mods

import (
	"regexp"
	"strings"
)

func init() {
	register(commonFixes{})
	register(removeTags{})
	register(removeHI{})
}

var (
	leadingEllipsis   = regexp.MustCompile(`^\.\.\.\s*`)
	downloadedFrom    = regexp.MustCompile(`(?i).+downloaded\s+from.+`)
	ellipsisNoSpace   = regexp.MustCompile(`\.\.\.([^\s.,!?'"])`)
	multipleSpaces    = regexp.MustCompile(`\s{2,}`)
	dashNoSpace       = regexp.MustCompile(`^-([^\s-])`)
	leadingCrocodiles = regexp.MustCompile(`^\s?>>\s*`)
	spaceBeforePunct  = regexp.MustCompile(`(\w) +([!?.,])(\s|$)`)

	styleTags = regexp.MustCompile(`(?i)</?(?:i|b|u|s|font)(?:\s[^>]*)?>|\{\\[^}]*\}`)

	bracketed    = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)|♪[^♪]*♪`)
	speakerLabel = regexp.MustCompile(`^(-\s*)?[A-Z][A-Z0-9 .'\-]*:\s*`)
	onlyPunct    = regexp.MustCompile(`^[\s\-.,:;!?♪#]*$`)
)

// commonFixes cleans whitespace and punctuation issues
type commonFixes struct{}

func (commonFixes) ID() string      { return "common" }
func (commonFixes) Exclusive() bool { return true }
func (commonFixes) Order() int      { return 40 }

func (commonFixes) Apply(content string) string {
	return mapLines(content, func(line string) string {
		line = strings.ReplaceAll(line, "-- ", "... ")
		line = strings.ReplaceAll(line, "''", `"`)
		if downloadedFrom.MatchString(line) {
			return ""
		}
		line = leadingEllipsis.ReplaceAllString(line, "")
		line = ellipsisNoSpace.ReplaceAllString(line, "... $1")
		line = multipleSpaces.ReplaceAllString(line, " ")
		line = dashNoSpace.ReplaceAllString(line, "- $1")
		line = leadingCrocodiles.ReplaceAllString(line, "")
		line = spaceBeforePunct.ReplaceAllString(line, "$1$2$3")
		return strings.TrimSpace(line)
	})
}

// removeTags strips every style tag
type removeTags struct{}

func (removeTags) ID() string      { return "remove_tags" }
func (removeTags) Exclusive() bool { return true }
func (removeTags) Order() int      { return 50 }

func (removeTags) Apply(content string) string {
	return mapLines(content, func(line string) string {
		return styleTags.ReplaceAllString(line, "")
	})
}

// removeHI drops hearing-impaired annotations and speaker labels
type removeHI struct{}

func (removeHI) ID() string      { return "remove_hi" }
func (removeHI) Exclusive() bool { return false }
func (removeHI) Order() int      { return 10 }

func (removeHI) Apply(content string) string {
	return mapLines(content, func(line string) string {
		line = bracketed.ReplaceAllString(line, "")
		line = speakerLabel.ReplaceAllString(line, "$1")
		line = strings.TrimSpace(multipleSpaces.ReplaceAllString(line, " "))
		if onlyPunct.MatchString(line) {
			return ""
		}
		return line
	})
}
