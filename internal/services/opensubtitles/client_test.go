package opensubtitles

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/services/provider"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchBody = `{
  "total_pages": 1,
  "page": 1,
  "data": [
    {
      "id": "9000",
      "attributes": {
        "language": "en",
        "release": "The.Show.S01E02.720p.HDTV.x264-KILLERS",
        "download_count": 1200,
        "hearing_impaired": false,
        "moviehash_match": true,
        "upload_date": "2024-01-02T10:00:00Z",
        "url": "https://www.opensubtitles.com/en/subtitles/9000",
        "feature_details": {"feature_type": "Episode", "title": "Pilot", "parent_title": "The Show", "year": 2023, "season_number": 1, "episode_number": 2},
        "files": [{"file_id": 111, "file_name": "the.show.s01e02.srt"}]
      }
    },
    {
      "id": "9001",
      "attributes": {
        "language": "pt-PT",
        "release": "The Show 1x02",
        "hearing_impaired": true,
        "feature_details": {"parent_title": "The Show", "season_number": 1, "episode_number": 2},
        "files": [{"file_id": 222}]
      }
    },
    {
      "id": "9002",
      "attributes": {"language": "en", "release": "no files", "files": []}
    }
  ]
}`

func newTestClient(t *testing.T, url string, cfg Config) *Client {
	t.Helper()
	cfg.BaseURL = url
	if cfg.APIKey == "" {
		cfg.APIKey = "key"
	}
	cfg.Timeout = 2 * time.Second
	client, err := NewClient(cfg, utils.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func episode() models.Video {
	return models.Video{Kind: models.KindEpisode, Series: "The Show", Season: 1, Episode: 2, Hash: "abcdef"}
}

func TestQuery(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subtitles", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("Api-Key"))
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchBody))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, Config{})
	langs := []models.Language{models.MustLanguage("en"), models.MustLanguage("pt")}
	got, err := client.Query(context.Background(), episode(), langs)
	require.NoError(t, err)

	assert.Equal(t, "en,pt-pt", gotQuery["languages"])
	assert.Equal(t, "The Show", gotQuery["query"])
	assert.Equal(t, "1", gotQuery["season_number"])
	assert.Equal(t, "2", gotQuery["episode_number"])
	assert.Equal(t, "abcdef", gotQuery["moviehash"])

	require.Len(t, got, 2)
	first := got[0]
	assert.Equal(t, Name, first.Provider)
	assert.Equal(t, "111", first.ID)
	assert.Equal(t, "en", first.Language.String())
	assert.True(t, first.HashMatched)
	assert.Equal(t, "The Show", first.Hints.Title)
	assert.Equal(t, "KILLERS", first.Hints.ReleaseGroup)
	assert.Equal(t, 2023, first.Hints.Year)
	assert.False(t, first.SeenAt.IsZero())

	second := got[1]
	assert.Equal(t, "pt", second.Language.String())
	assert.True(t, second.HearingImpaired)
	assert.Equal(t, 2, second.Hints.Episode)
}

func TestQueryClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"rate limited", http.StatusTooManyRequests, "slow down", func(t *testing.T, err error) {
			assert.True(t, provider.IsTransient(err))
		}},
		{"unavailable", http.StatusServiceUnavailable, "", func(t *testing.T, err error) {
			assert.True(t, provider.IsTransient(err))
		}},
		{"unauthorized", http.StatusUnauthorized, "bad key", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, provider.ErrAuthentication)
		}},
		{"garbage", http.StatusOK, "<html>", func(t *testing.T, err error) {
			assert.ErrorIs(t, err, provider.ErrParse)
			assert.False(t, provider.IsTransient(err))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := newTestClient(t, server.URL, Config{})
			_, err := client.Query(context.Background(), episode(), []models.Language{models.MustLanguage("en")})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestInitializeAndDownload(t *testing.T) {
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"token":"tok","status":200}`))
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(111), body["file_id"])
		w.Write([]byte(`{"link":"` + server.URL + `/files/111.srt","remaining":99}`))
	})
	mux.HandleFunc("/files/111.srt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nHello\n"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	bad := newTestClient(t, server.URL, Config{Username: "me", Password: "wrong"})
	assert.ErrorIs(t, bad.Initialize(context.Background()), provider.ErrAuthentication)

	client := newTestClient(t, server.URL, Config{Username: "me", Password: "secret"})
	require.True(t, client.RequiresAuth())
	require.NoError(t, client.Initialize(context.Background()))

	content, err := client.Download(context.Background(), &models.Candidate{Provider: Name, ID: "111"})
	require.NoError(t, err)
	assert.Contains(t, string(content), "Hello")
}

func TestInitializeWithoutCredentialsIsNoop(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1", Config{})
	assert.False(t, client.RequiresAuth())
	assert.NoError(t, client.Initialize(context.Background()))
}
