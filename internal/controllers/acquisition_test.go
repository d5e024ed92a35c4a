package controllers

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/amaumene/gosubarr/internal/mods"
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/services/provider"
	"github.com/amaumene/gosubarr/internal/services/provider/mocks"
	"github.com/amaumene/gosubarr/internal/store"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	en = models.MustLanguage("en")
	fr = models.MustLanguage("fr")
)

type savedSubtitle struct {
	video   models.Video
	lang    models.Language
	content string
}

type fakePersister struct {
	mu    sync.Mutex
	saved []savedSubtitle
	err   error
}

func (p *fakePersister) Save(ctx context.Context, video models.Video, lang models.Language, content []byte) (models.StorageKind, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return models.StorageNone, p.err
	}
	p.saved = append(p.saved, savedSubtitle{video: video, lang: lang, content: string(content)})
	return models.StorageFilesystem, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (n *fakeNotifier) Notify(video models.Video, lang models.Language, storage models.StorageKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, fmt.Sprintf("%s/%s/%s", video.ID, lang, storage))
}

type acquisitionFixture struct {
	db        *store.DB
	adapter   *mocks.MockQueryableProvider
	persister *fakePersister
	notifier  *fakeNotifier
	ctrl      *AcquisitionController
}

func newFixture(t *testing.T, blacklist *utils.Blacklist) *acquisitionFixture {
	t.Helper()
	logger := utils.NewTestLogger()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mockCtrl := gomock.NewController(t)
	adapter := mocks.NewMockQueryableProvider(mockCtrl)
	adapter.EXPECT().Name().Return("src").AnyTimes()
	adapter.EXPECT().Supports(gomock.Any()).Return(true).AnyTimes()
	adapter.EXPECT().RequiresAuth().Return(false).AnyTimes()
	adapter.EXPECT().Initialize(gomock.Any()).Return(nil)

	pool, err := provider.NewPool(context.Background(), []provider.QueryableProvider{adapter},
		provider.Options{Timeout: time.Second, Retries: 1}, logger)
	require.NoError(t, err)

	pipeline, err := mods.NewPipeline(nil, logger)
	require.NoError(t, err)

	f := &acquisitionFixture{db: db, adapter: adapter, persister: &fakePersister{}, notifier: &fakeNotifier{}}
	f.ctrl = NewAcquisitionController(
		pool,
		NewMatchScorer(50, nil, nil, logger),
		db,
		f.persister,
		f.notifier,
		pipeline,
		blacklist,
		AcquisitionOptions{Languages: []models.Language{en}, DownloadTries: 2, NoMatchRetry: time.Hour},
		logger,
	)
	return f
}

func heat() models.Video {
	return models.Video{ID: "item", PartID: "part", SectionID: "0", Kind: models.KindMovie, Title: "Heat", Year: 1995}
}

// good scores 90, weak scores 60, bad scores 0
func offer(id string, lang models.Language, quality string) *models.Candidate {
	c := &models.Candidate{Provider: "src", ID: id, Language: lang, ReleaseName: "Heat." + id, SeenAt: time.Now()}
	switch quality {
	case "good":
		c.Hints = models.ReleaseHints{Title: "Heat", Year: 1995}
	case "weak":
		c.Hints = models.ReleaseHints{Title: "Heat"}
	}
	return c
}

func serve(contents map[string]string) func(context.Context, *models.Candidate) ([]byte, error) {
	return func(_ context.Context, c *models.Candidate) ([]byte, error) {
		if content, ok := contents[c.ID]; ok {
			return []byte(content), nil
		}
		return nil, fmt.Errorf("%w: %s", provider.ErrInvalidArchive, c.ID)
	}
}

func TestProcessStoresBestCandidate(t *testing.T) {
	f := newFixture(t, nil)
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Candidate{offer("weak", en, "weak"), offer("bad", en, "bad"), offer("good", en, "good")}, nil)
	f.adapter.EXPECT().Download(gomock.Any(), gomock.Any()).
		DoAndReturn(serve(map[string]string{"good": "good subtitle", "weak": "weak subtitle"})).
		Times(1)

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusStored, out.Languages["en"])
	assert.Equal(t, 1, out.Stored())

	require.Len(t, f.persister.saved, 1)
	assert.Equal(t, "good subtitle", f.persister.saved[0].content)
	assert.Equal(t, []string{"item/en/filesystem"}, f.notifier.calls)

	rec, err := f.db.Ledger.Get("item")
	require.NoError(t, err)
	entries := rec.Entries("part", en)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].SubtitleID)
	assert.Equal(t, 90, entries[0].Score)
	assert.Equal(t, models.ContentFingerprint([]byte("good subtitle")), entries[0].Fingerprint)
}

func TestProcessSkipsStoredLanguages(t *testing.T) {
	f := newFixture(t, nil)
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Candidate{offer("good", en, "good")}, nil).
		Times(1)
	f.adapter.EXPECT().Download(gomock.Any(), gomock.Any()).
		DoAndReturn(serve(map[string]string{"good": "sub"})).
		Times(1)

	_, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, out.Languages["en"])
	assert.Empty(t, out.Report.Adapters, "no provider traffic")

	video := heat()
	video.ExistingLanguages = []models.Language{fr}
	out, err = f.ctrl.Process(context.Background(), Request{Video: video, Languages: []models.Language{fr}})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, out.Languages["fr"])
}

func TestForcedRefreshBypassesLedger(t *testing.T) {
	f := newFixture(t, nil)
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Candidate{offer("good", en, "good")}, nil).
		Times(2)
	downloads := 0
	f.adapter.EXPECT().Download(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c *models.Candidate) ([]byte, error) {
			downloads++
			return []byte(fmt.Sprintf("version %d", downloads)), nil
		}).
		Times(2)

	_, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat(), Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusStored, out.Languages["en"])
	require.Len(t, f.persister.saved, 2)
	assert.Equal(t, "version 2", f.persister.saved[1].content)

	rec, err := f.db.Ledger.Get("item")
	require.NoError(t, err)
	entries := rec.Entries("part", en)
	require.Len(t, entries, 1, "forced refresh overwrites")
	assert.Equal(t, models.ModeOverwrite, entries[0].Mode)
	assert.Equal(t, models.ContentFingerprint([]byte("version 2")), entries[0].Fingerprint)
}

func TestProcessTriedCandidatesAreNotFetchedAgain(t *testing.T) {
	f := newFixture(t, nil)
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Candidate{offer("good", en, "good"), offer("weak", en, "weak")}, nil).
		Times(2)

	fetched := []string{}
	f.adapter.EXPECT().Download(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, c *models.Candidate) ([]byte, error) {
			fetched = append(fetched, c.ID)
			return nil, fmt.Errorf("%w: nothing matched", provider.ErrInvalidArchive)
		}).
		AnyTimes()

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoMatch, out.Languages["en"])
	assert.Equal(t, []string{"good", "weak"}, fetched)

	rec, err := f.db.Ledger.Get("item")
	require.NoError(t, err)
	for _, e := range rec.Entries("part", en) {
		assert.Equal(t, models.StorageNone, e.Storage)
	}
	assert.False(t, rec.Stored("part", en))
	_, marked := rec.LastNoMatch("part", en)
	assert.True(t, marked)

	// Forced: the no-match window and the tried entries are bypassed
	out, err = f.ctrl.Process(context.Background(), Request{Video: heat(), Force: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoMatch, out.Languages["en"])
	assert.Equal(t, []string{"good", "weak", "good", "weak"}, fetched)
}

func TestProcessSkipsContentAlreadyRecordedAsBad(t *testing.T) {
	f := newFixture(t, nil)
	page := "<html>rate limited</html>"
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Candidate{offer("good", en, "good"), offer("weak", en, "weak")}, nil)
	f.adapter.EXPECT().Download(gomock.Any(), gomock.Any()).
		DoAndReturn(serve(map[string]string{"good": page, "weak": page})).
		Times(2)

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoMatch, out.Languages["en"])
	assert.Empty(t, f.persister.saved)
	assert.Empty(t, f.notifier.calls)

	// The second download has the same bytes under another ID and is not
	// recorded again
	rec, err := f.db.Ledger.Get("item")
	require.NoError(t, err)
	entries := rec.Entries("part", en)
	require.Len(t, entries, 1)
	assert.Equal(t, "good", entries[0].SubtitleID)
	assert.Equal(t, models.StorageNone, entries[0].Storage)
	assert.Equal(t, models.ContentFingerprint([]byte(page)), entries[0].Fingerprint)
}

func TestUsableContent(t *testing.T) {
	assert.True(t, usable([]byte("1\n00:00:01,000 --> 00:00:02,000\nHi\n")))
	assert.True(t, usable([]byte("\ufeff[Script Info]\n")))
	assert.False(t, usable(nil))
	assert.False(t, usable([]byte(" \r\n\t")))
	assert.False(t, usable([]byte("\ufeff")))
	assert.False(t, usable([]byte("  <!DOCTYPE html><html><body>Too many requests</body></html>")))
	assert.False(t, usable([]byte("<HTML><head></head></HTML>")))
}

func TestProcessNoMatchSuppressesRetry(t *testing.T) {
	f := newFixture(t, nil)
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, nil).
		Times(1)

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoMatch, out.Languages["en"])

	out, err = f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, out.Languages["en"])
}

func TestProcessPersistFailureRecordsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.persister.err = errors.New("disk full")
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Candidate{offer("good", en, "good")}, nil)
	f.adapter.EXPECT().Download(gomock.Any(), gomock.Any()).
		DoAndReturn(serve(map[string]string{"good": "sub"}))

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, out.Languages["en"])
	assert.Empty(t, f.notifier.calls)

	rec, err := f.ledgerOrNew()
	require.NoError(t, err)
	assert.Empty(t, rec.Entries("part", en))
	_, marked := rec.LastNoMatch("part", en)
	assert.False(t, marked)
}

func TestProcessHonoursDownloadTries(t *testing.T) {
	f := newFixture(t, nil)
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Candidate{offer("a", en, "good"), offer("b", en, "good"), offer("c", en, "good")}, nil)
	f.adapter.EXPECT().Download(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("boom")).
		Times(2)

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, out.Languages["en"])
}

func TestProcessFiltersBlacklistAndThreshold(t *testing.T) {
	f := newFixture(t, utils.NewBlacklist([]string{"Heat.bl"}))
	f.adapter.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).
		Return([]*models.Candidate{offer("bl", en, "good"), offer("bad", en, "bad")}, nil)

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, models.StatusNoMatch, out.Languages["en"])
	assert.Empty(t, f.persister.saved)
}

func TestProcessSkipsIgnoredItems(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.db.Ignore.Add(models.IgnoreSections, "0", "Movies"))

	out, err := f.ctrl.Process(context.Background(), Request{Video: heat()})
	require.NoError(t, err)
	assert.Equal(t, string(models.IgnoreSections), out.Ignored)
	assert.Equal(t, models.StatusSkipped, out.Languages["en"])
}

func TestProcessRankingTieBreaks(t *testing.T) {
	f := newFixture(t, nil)
	older := offer("older", en, "good")
	older.SeenAt = time.Now().Add(-time.Hour)
	newer := offer("newer", en, "good")

	rec := models.NewLedgerRecord("item", "Heat")
	ranked := f.ctrl.rank(rec, "part", heat(), []*models.Candidate{older, offer("weak", en, "weak"), newer}, false)
	require.Len(t, ranked["en"], 3)
	assert.Equal(t, "newer", ranked["en"][0].ID)
	assert.Equal(t, "older", ranked["en"][1].ID)
	assert.Equal(t, "weak", ranked["en"][2].ID)
}

func (f *acquisitionFixture) ledgerOrNew() (*models.LedgerRecord, error) {
	return f.db.Ledger.LoadOrNew("item", "Heat")
}
