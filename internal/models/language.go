package models

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Language is an ISO 639-1 code with an optional region (e.g. "pt-BR")
type Language struct {
	Code   string
	Region string
}

// ParseLanguage accepts any BCP 47 or ISO 639 form and normalizes it.
// The region is kept only when it was given explicitly.
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Language{}, fmt.Errorf("empty language")
	}

	tag, err := language.Parse(s)
	if err != nil {
		return Language{}, fmt.Errorf("invalid language %q: %w", s, err)
	}

	base, conf := tag.Base()
	if conf == language.No {
		return Language{}, fmt.Errorf("unknown language %q", s)
	}

	lang := Language{Code: base.String()}
	if region, rconf := tag.Region(); rconf == language.Exact {
		lang.Region = region.String()
	}
	return lang, nil
}

// MustLanguage is ParseLanguage for literals
func MustLanguage(s string) Language {
	lang, err := ParseLanguage(s)
	if err != nil {
		panic(err)
	}
	return lang
}

// ParseLanguages parses a list, dropping duplicates and keeping order
func ParseLanguages(values []string) ([]Language, error) {
	var langs []Language
	seen := make(map[Language]bool)
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		lang, err := ParseLanguage(v)
		if err != nil {
			return nil, err
		}
		if seen[lang] {
			continue
		}
		seen[lang] = true
		langs = append(langs, lang)
	}
	return langs, nil
}

func (l Language) String() string {
	if l.Region == "" {
		return l.Code
	}
	return l.Code + "-" + l.Region
}

// IsZero reports whether the language is unset
func (l Language) IsZero() bool {
	return l.Code == ""
}

// Equal is strict: "pt" and "pt-BR" are different languages
func (l Language) Equal(other Language) bool {
	return l.Code == other.Code && l.Region == other.Region
}

// ContainsLanguage reports whether lang is in langs
func ContainsLanguage(langs []Language, lang Language) bool {
	for _, l := range langs {
		if l.Equal(lang) {
			return true
		}
	}
	return false
}
