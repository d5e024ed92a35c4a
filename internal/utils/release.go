package utils

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/amaumene/gosubarr/internal/models"
)

var (
	episodeRegex = regexp.MustCompile(`(?i)(?:^|[\._ \-\[])S(\d{1,2})[\._ ]?E(\d{1,3})`)
	crossRegex   = regexp.MustCompile(`(?i)(?:^|[\._ \-\[])(\d{1,2})x(\d{2,3})(?:[\._ \-\]]|$)`)
	yearRegex    = regexp.MustCompile(`(?:^|[\._ \(\[])((?:19|20)\d{2})(?:[\._ \)\]]|$)`)
	groupRegex   = regexp.MustCompile(`-([A-Za-z0-9]+)$`)
	tagRegex     = regexp.MustCompile(`(?:\s*\[[^\]]*\])+$`)
	tokenRegex   = regexp.MustCompile(`[A-Za-z0-9]+`)
)

var resolutions = map[string]string{
	"2160p": "2160p",
	"4k":    "2160p",
	"uhd":   "2160p",
	"1080p": "1080p",
	"1080i": "1080i",
	"720p":  "720p",
	"576p":  "576p",
	"480p":  "480p",
}

var formats = map[string]string{
	"bluray":  "bluray",
	"bdrip":   "bluray",
	"brrip":   "bluray",
	"bdremux": "bluray",
	"remux":   "bluray",
	"webdl":   "web",
	"webrip":  "web",
	"web":     "web",
	"hdtv":    "hdtv",
	"dvdrip":  "dvd",
	"dvd":     "dvd",
	"hdrip":   "hdrip",
}

var codecs = map[string]string{
	"x264": "h264",
	"h264": "h264",
	"avc":  "h264",
	"x265": "h265",
	"h265": "h265",
	"hevc": "h265",
	"xvid": "xvid",
	"divx": "divx",
}

// Suffixes that look like a release group but are part of a tag
var notGroups = map[string]bool{
	"dl": true, "ray": true, "rip": true, "sdh": true, "hi": true,
}

var knownExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true, ".ts": true, ".wmv": true, ".mov": true,
	".srt": true, ".sub": true, ".ass": true, ".ssa": true, ".vtt": true, ".zip": true, ".rar": true,
}

// ParseRelease extracts the attributes a release or file name exposes.
// Unknown attributes are left at their zero value.
func ParseRelease(name string) models.ReleaseHints {
	var hints models.ReleaseHints

	full := filepath.Base(name)
	if ext := filepath.Ext(full); knownExtensions[strings.ToLower(ext)] {
		full = strings.TrimSuffix(full, ext)
	}
	base := tagRegex.ReplaceAllString(full, "")

	titleEnd := len(base)
	cut := func(idx int) {
		if idx >= 0 && idx < titleEnd {
			titleEnd = idx
		}
	}

	if m := episodeRegex.FindStringSubmatchIndex(base); m != nil {
		hints.Season, _ = strconv.Atoi(base[m[2]:m[3]])
		hints.Episode, _ = strconv.Atoi(base[m[4]:m[5]])
		cut(m[0])
	} else if m := crossRegex.FindStringSubmatchIndex(base); m != nil {
		hints.Season, _ = strconv.Atoi(base[m[2]:m[3]])
		hints.Episode, _ = strconv.Atoi(base[m[4]:m[5]])
		cut(m[0])
	}

	// A leading year belongs to the title ("2001 A Space Odyssey 1968")
	for _, m := range yearRegex.FindAllStringSubmatchIndex(base, -1) {
		if m[2] == 0 {
			continue
		}
		hints.Year, _ = strconv.Atoi(base[m[2]:m[3]])
		cut(m[0])
		break
	}

	if m := groupRegex.FindStringSubmatch(base); m != nil && !notGroups[strings.ToLower(m[1])] {
		hints.ReleaseGroup = m[1]
	}

	// Words before a season or year marker are always title words
	minPos := 1
	if titleEnd < len(base) {
		minPos = titleEnd
	}

	locs := tokenRegex.FindAllStringIndex(full, -1)
	tokens := make([]string, len(locs))
	for i, loc := range locs {
		tokens[i] = strings.ToLower(full[loc[0]:loc[1]])
	}
	next := func(i int) string {
		if i+1 < len(tokens) {
			return tokens[i+1]
		}
		return ""
	}

	for i, tok := range tokens {
		pos := locs[i][0]
		if pos < minPos {
			continue
		}
		switch {
		case resolutions[tok] != "":
			if hints.Resolution == "" {
				hints.Resolution = resolutions[tok]
			}
		case codecs[tok] != "":
			if hints.Codec == "" {
				hints.Codec = codecs[tok]
			}
		case tok == "h" && (next(i) == "264" || next(i) == "265"):
			if hints.Codec == "" {
				hints.Codec = "h" + next(i)
			}
		case tok == "blu" && next(i) == "ray":
			if hints.Format == "" {
				hints.Format = "bluray"
			}
		case formats[tok] != "":
			if hints.Format == "" {
				hints.Format = formats[tok]
			}
		case tok == "hi" || tok == "sdh":
			hints.HearingImpaired = true
			continue
		default:
			continue
		}
		if pos < len(base) {
			cut(pos)
		}
	}

	hints.Title = cleanTitle(base[:titleEnd])
	return hints
}

func cleanTitle(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '.', '_':
			return ' '
		}
		return r
	}, s)
	s = strings.Trim(s, " -([")
	return strings.Join(strings.Fields(s), " ")
}
