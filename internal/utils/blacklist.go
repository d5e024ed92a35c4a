package utils

import (
	"bufio"
	"os"
	"strings"
)

// Blacklist holds terms for filtering subtitle releases.
// A term of the form "provider:<name>" bans a whole provider.
type Blacklist struct {
	terms     []string
	providers map[string]bool
}

// LoadBlacklist loads blacklist terms from a file
func LoadBlacklist(path string) (*Blacklist, error) {
	// If file doesn't exist, return empty blacklist
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return NewBlacklist(nil), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var terms []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		term := strings.TrimSpace(scanner.Text())
		if term != "" && !strings.HasPrefix(term, "#") {
			terms = append(terms, term)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return NewBlacklist(terms), nil
}

// NewBlacklist builds a blacklist from terms
func NewBlacklist(terms []string) *Blacklist {
	b := &Blacklist{providers: make(map[string]bool)}
	for _, term := range terms {
		if name, ok := strings.CutPrefix(strings.ToLower(term), "provider:"); ok {
			b.providers[strings.TrimSpace(name)] = true
			continue
		}
		b.terms = append(b.terms, term)
	}
	return b
}

// IsBlacklisted checks a provider and release name against the blacklist.
// Returns (isBlacklisted, matchedTerm)
func (b *Blacklist) IsBlacklisted(provider, release string) (bool, string) {
	if b == nil {
		return false, ""
	}
	if b.providers[strings.ToLower(provider)] {
		return true, "provider:" + provider
	}

	releaseLower := strings.ToLower(release)
	for _, term := range b.terms {
		if strings.Contains(releaseLower, strings.ToLower(term)) {
			return true, term
		}
	}

	return false, ""
}
