package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/gosubarr/internal/metrics"
	"github.com/amaumene/gosubarr/internal/models"
	"github.com/amaumene/gosubarr/internal/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Options configures a Pool
type Options struct {
	Timeout     time.Duration // per attempt
	Retries     int           // attempts per call, at least 1
	RetryDelay  time.Duration
	CacheTTL    time.Duration // zero disables the result cache
	Concurrency int           // adapters queried at once, zero means all
}

// Status is the outcome of one adapter within one pool query
type Status string

const (
	StatusOK       Status = "ok"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"  // no wanted language supported
	StatusDisabled Status = "disabled" // authentication failed earlier
	StatusCached   Status = "cached"
)

// AdapterReport describes what one adapter did for a query
type AdapterReport struct {
	Provider string `json:"provider"`
	Status   Status `json:"status"`
	Attempts int    `json:"attempts"`
	Results  int    `json:"results"`
	Error    string `json:"error,omitempty"`
}

// Report is the per-adapter diagnostics of one pool query
type Report struct {
	Adapters []AdapterReport `json:"adapters"`
}

// AllFailed reports whether at least one adapter was asked and every one asked failed
func (r Report) AllFailed() bool {
	asked := 0
	for _, a := range r.Adapters {
		switch a.Status {
		case StatusOK, StatusCached:
			return false
		case StatusFailed:
			asked++
		}
	}
	return asked > 0
}

// Failed lists the adapters that failed
func (r Report) Failed() []string {
	var names []string
	for _, a := range r.Adapters {
		if a.Status == StatusFailed {
			names = append(names, a.Provider)
		}
	}
	return names
}

// Pool fans a query out to every adapter and merges the results.
// A failing adapter never fails the pool.
type Pool struct {
	adapters []QueryableProvider
	priority map[string]int
	opts     Options
	cache    *cache.Cache
	logger   *logrus.Logger

	mu       sync.RWMutex
	disabled map[string]error
}

// NewPool initializes every adapter once. Adapters that fail are excluded for
// the pool's lifetime and reported in a *ConfigurationError; the returned pool
// is usable either way.
func NewPool(ctx context.Context, adapters []QueryableProvider, opts Options, logger *logrus.Logger) (*Pool, error) {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	p := &Pool{
		priority: make(map[string]int),
		opts:     opts,
		logger:   logger,
		disabled: make(map[string]error),
	}
	if opts.CacheTTL > 0 {
		p.cache = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}

	failures := make(map[string]error)
	for i, a := range adapters {
		name := a.Name()
		p.priority[name] = i

		initCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		err := a.Initialize(initCtx)
		cancel()
		if err != nil {
			logger.WithError(err).WithField("provider", name).Error("Failed to initialize provider, disabling it")
			failures[name] = err
			continue
		}
		p.adapters = append(p.adapters, a)
		logger.WithFields(logrus.Fields{
			"provider":      name,
			"requires_auth": a.RequiresAuth(),
		}).Info("Provider initialized")
	}

	if len(failures) > 0 {
		return p, &ConfigurationError{Failures: failures}
	}
	return p, nil
}

// Providers lists the active adapters in priority order
func (p *Pool) Providers() []string {
	names := make([]string, 0, len(p.adapters))
	for _, a := range p.adapters {
		names = append(names, a.Name())
	}
	return names
}

// Priority returns the configured position of a provider, lower is preferred
func (p *Pool) Priority(name string) int {
	if i, ok := p.priority[name]; ok {
		return i
	}
	return len(p.priority)
}

// Query returns candidates in the wanted languages from every reachable adapter.
// It never returns an error: no results and no reachable adapter look the same.
func (p *Pool) Query(ctx context.Context, video models.Video, langs []models.Language) []*models.Candidate {
	candidates, _ := p.QueryWithReport(ctx, video, langs)
	return candidates
}

// QueryWithReport is Query plus per-adapter diagnostics
func (p *Pool) QueryWithReport(ctx context.Context, video models.Video, langs []models.Language) ([]*models.Candidate, Report) {
	ctx, span := utils.StartSpan(ctx, "provider.pool.query", map[string]string{
		"video":     video.Signature(),
		"languages": languageKey(langs),
	})
	defer span.End()

	reports := make([]AdapterReport, len(p.adapters))
	results := make([][]*models.Candidate, len(p.adapters))

	limit := p.opts.Concurrency
	if limit <= 0 || limit > len(p.adapters) {
		limit = len(p.adapters)
	}
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, a := range p.adapters {
		name := a.Name()
		reports[i] = AdapterReport{Provider: name}

		if err := p.disabledErr(name); err != nil {
			reports[i].Status = StatusDisabled
			reports[i].Error = err.Error()
			continue
		}

		wanted := supported(a, langs)
		if len(wanted) == 0 {
			reports[i].Status = StatusSkipped
			continue
		}

		i, a := i, a
		g.Go(func() error {
			results[i], reports[i] = p.queryAdapter(ctx, a, video, wanted)
			return nil
		})
	}
	_ = g.Wait()

	var merged []*models.Candidate
	for i, found := range results {
		name := p.adapters[i].Name()
		for _, c := range found {
			if c == nil || !models.ContainsLanguage(langs, c.Language) {
				continue
			}
			if c.Provider == "" {
				c.Provider = name
			}
			target := video
			c.Target = &target
			merged = append(merged, c)
		}
	}

	report := Report{Adapters: reports}
	if report.AllFailed() {
		p.logger.WithFields(logrus.Fields{
			"video":     video.Name(),
			"providers": strings.Join(report.Failed(), ","),
		}).Warn("All providers failed, no subtitles could be searched")
	}

	return merged, report
}

func (p *Pool) queryAdapter(ctx context.Context, a QueryableProvider, video models.Video, langs []models.Language) ([]*models.Candidate, AdapterReport) {
	name := a.Name()
	report := AdapterReport{Provider: name}
	key := cacheKey(name, video, langs)

	if p.cache != nil {
		if cached, ok := p.cache.Get(key); ok {
			metrics.ProviderCacheHits.WithLabelValues(name).Inc()
			stored := cached.([]*models.Candidate)
			out := make([]*models.Candidate, 0, len(stored))
			for _, c := range stored {
				out = append(out, c.Clone())
			}
			report.Status = StatusCached
			report.Results = len(out)
			return out, report
		}
	}

	ctx, span := utils.StartSpan(ctx, "provider.query", map[string]string{"provider": name})
	defer span.End()

	start := time.Now()
	var found []*models.Candidate
	attempts, err := p.retry(ctx, name, "query", func(actx context.Context) error {
		var qerr error
		found, qerr = a.Query(actx, video, langs)
		return qerr
	})
	metrics.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	report.Attempts = attempts

	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrAuthentication) {
			p.disable(name, err)
		}
		metrics.ProviderQueries.WithLabelValues(name, string(StatusFailed)).Inc()
		p.logger.WithError(err).WithFields(logrus.Fields{
			"provider": name,
			"video":    video.Name(),
			"attempts": attempts,
		}).Warn("Provider query failed")
		report.Status = StatusFailed
		report.Error = err.Error()
		return nil, report
	}

	metrics.ProviderQueries.WithLabelValues(name, string(StatusOK)).Inc()
	p.logger.WithFields(logrus.Fields{
		"provider":    name,
		"video":       video.Name(),
		"results":     len(found),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Provider returned")

	if p.cache != nil {
		stored := make([]*models.Candidate, 0, len(found))
		for _, c := range found {
			if c != nil {
				stored = append(stored, c.Clone())
			}
		}
		p.cache.SetDefault(key, stored)
	}

	report.Status = StatusOK
	report.Results = len(found)
	return found, report
}

// Fetch downloads a candidate's content with the same retry policy as queries
func (p *Pool) Fetch(ctx context.Context, c *models.Candidate) ([]byte, error) {
	a := p.adapter(c.Provider)
	if a == nil {
		return nil, fmt.Errorf("unknown provider %q", c.Provider)
	}
	if err := p.disabledErr(c.Provider); err != nil {
		return nil, fmt.Errorf("provider %s is disabled: %w", c.Provider, err)
	}

	ctx, span := utils.StartSpan(ctx, "provider.download", map[string]string{
		"provider":    c.Provider,
		"subtitle_id": c.ID,
	})
	defer span.End()

	var content []byte
	attempts, err := p.retry(ctx, c.Provider, "download", func(actx context.Context) error {
		var derr error
		content, derr = a.Download(actx, c)
		return derr
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrAuthentication) {
			p.disable(c.Provider, err)
		}
		return nil, fmt.Errorf("failed to download %s after %d attempt(s): %w", c.Key(), attempts, err)
	}
	return content, nil
}

// retry runs fn up to Retries times with a fixed delay. Only transient errors
// are retried. Each attempt gets its own deadline.
func (p *Pool) retry(ctx context.Context, name, operation string, fn func(context.Context) error) (int, error) {
	attempts := 0
	op := func() error {
		attempts++
		metrics.ProviderAttempts.WithLabelValues(name, operation).Inc()

		actx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		p.logger.WithError(err).WithFields(logrus.Fields{
			"provider":  name,
			"operation": operation,
			"attempt":   attempts,
		}).Debug("Transient provider error")
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.opts.RetryDelay), uint64(p.opts.Retries-1)),
		ctx,
	)
	err := backoff.Retry(op, policy)
	return attempts, err
}

func (p *Pool) adapter(name string) QueryableProvider {
	for _, a := range p.adapters {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (p *Pool) disable(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.disabled[name]; ok {
		return
	}
	p.disabled[name] = err
	p.logger.WithError(err).WithField("provider", name).Error("Provider authentication failed, disabling it")
}

func (p *Pool) disabledErr(name string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.disabled[name]
}

func supported(a QueryableProvider, langs []models.Language) []models.Language {
	var out []models.Language
	for _, l := range langs {
		if a.Supports(l) {
			out = append(out, l)
		}
	}
	return out
}

func languageKey(langs []models.Language) string {
	codes := make([]string, 0, len(langs))
	for _, l := range langs {
		codes = append(codes, l.String())
	}
	sort.Strings(codes)
	return strings.Join(codes, ",")
}

func cacheKey(name string, video models.Video, langs []models.Language) string {
	return name + "|" + video.Signature() + "|" + languageKey(langs)
}
