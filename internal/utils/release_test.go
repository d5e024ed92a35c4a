package utils

import (
	"testing"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestParseRelease(t *testing.T) {
	tests := []struct {
		name string
		want models.ReleaseHints
	}{
		{
			name: "The.Show.S01E02.720p.HDTV.x264-KILLERS.mkv",
			want: models.ReleaseHints{
				Title: "The Show", Season: 1, Episode: 2,
				Resolution: "720p", Format: "hdtv", Codec: "h264", ReleaseGroup: "KILLERS",
			},
		},
		{
			name: "Heat.1995.1080p.BluRay.x264-GROUP",
			want: models.ReleaseHints{
				Title: "Heat", Year: 1995,
				Resolution: "1080p", Format: "bluray", Codec: "h264", ReleaseGroup: "GROUP",
			},
		},
		{
			name: "2001.A.Space.Odyssey.1968.720p.WEB-DL",
			want: models.ReleaseHints{
				Title: "2001 A Space Odyssey", Year: 1968,
				Resolution: "720p", Format: "web",
			},
		},
		{
			name: "show 1x03 hi.srt",
			want: models.ReleaseHints{
				Title: "show", Season: 1, Episode: 3, HearingImpaired: true,
			},
		},
		{
			name: "/media/movies/Some Movie (2010) Blu-Ray H.264 [SDH].srt",
			want: models.ReleaseHints{
				Title: "Some Movie", Year: 2010,
				Format: "bluray", Codec: "h264", HearingImpaired: true,
			},
		},
		{
			name: "Plain Title",
			want: models.ReleaseHints{Title: "Plain Title"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRelease(tt.name))
		})
	}
}

func TestBlacklist(t *testing.T) {
	b := NewBlacklist([]string{"CAM", "provider:Podnapisi"})

	listed, term := b.IsBlacklisted("opensubtitles", "Movie.2020.CAM.x264")
	assert.True(t, listed)
	assert.Equal(t, "CAM", term)

	listed, term = b.IsBlacklisted("podnapisi", "Movie.2020.1080p")
	assert.True(t, listed)
	assert.Equal(t, "provider:podnapisi", term)

	listed, _ = b.IsBlacklisted("opensubtitles", "Movie.2020.1080p")
	assert.False(t, listed)

	var empty *Blacklist
	listed, _ = empty.IsBlacklisted("a", "b")
	assert.False(t, listed)
}

func TestLoadBlacklistMissingFile(t *testing.T) {
	b, err := LoadBlacklist(t.TempDir() + "/missing.txt")
	assert.NoError(t, err)
	listed, _ := b.IsBlacklisted("a", "anything")
	assert.False(t, listed)
}
