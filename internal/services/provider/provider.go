package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/amaumene/gosubarr/internal/models"
)

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks . QueryableProvider

// QueryableProvider is implemented by every subtitle source
type QueryableProvider interface {
	Name() string
	Supports(lang models.Language) bool
	RequiresAuth() bool
	// Initialize logs in or otherwise prepares the adapter. Called once.
	Initialize(ctx context.Context) error
	Query(ctx context.Context, video models.Video, langs []models.Language) ([]*models.Candidate, error)
	// Download returns the subtitle content for a candidate
	Download(ctx context.Context, c *models.Candidate) ([]byte, error)
}

var (
	// ErrTransient marks network level failures worth retrying
	ErrTransient = errors.New("transient provider error")

	// ErrAuthentication disables an adapter for the pool's lifetime
	ErrAuthentication = errors.New("provider authentication failed")

	// ErrParse means the provider answered with something unreadable
	ErrParse = errors.New("provider response could not be parsed")

	// ErrInvalidArchive means no file in an archive matched the video well enough
	ErrInvalidArchive = errors.New("no archive entry matches the video")
)

// ConfigurationError lists adapters that failed to initialize
type ConfigurationError struct {
	Failures map[string]error
}

func (e *ConfigurationError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for name, err := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", name, err))
	}
	return "provider initialization failed: " + strings.Join(parts, "; ")
}

// Transient wraps err so IsTransient reports true
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is a network level failure worth retrying:
// timeouts, refused or reset connections, proxy and TLS errors, HTTP 429 and 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAuthentication) || errors.Is(err, ErrParse) || errors.Is(err, ErrInvalidArchive) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	tokens := []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"broken pipe",
		"no such host",
		"temporary failure",
		"awaiting headers",
		"proxyconnect",
		"proxy error",
		"tls:",
		"x509:",
		"eof",
	}
	for _, token := range tokens {
		if strings.Contains(message, token) {
			return true
		}
	}
	return false
}

// StatusError classifies an HTTP status from a provider.
// It returns nil for 2xx.
func StatusError(provider string, code int, body string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if len(body) > 200 {
		body = body[:200]
	}
	err := fmt.Errorf("%s returned status %d: %s", provider, code, body)
	switch {
	case code == 401 || code == 403:
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	case code == 429 || code >= 500:
		return Transient(err)
	}
	return err
}
