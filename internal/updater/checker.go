package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/soul-sense/desktop/internal/logging"
)

var ErrThrottled = errors.New("update check throttled")

const maxManifestSize = 1 << 20

// Checker fetches the manifest and compares it with the running version.
type Checker struct {
	endpoint string
	current  string
	target   string
	client   *retryablehttp.Client
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewChecker creates a checker. Checks closer together than minInterval
// fail with ErrThrottled; zero disables throttling.
func NewChecker(endpoint, current string, minInterval time.Duration, logger *zap.Logger) *Checker {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.HTTPClient.Timeout = 15 * time.Second
	client.Logger = logging.NewLeveled(logger)

	limit := rate.Inf
	if minInterval > 0 {
		limit = rate.Every(minInterval)
	}

	return &Checker{
		endpoint: endpoint,
		current:  current,
		target:   Target(),
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// URL expands the endpoint placeholders {{target}}, {{arch}} and {{current_version}}.
func (c *Checker) URL() string {
	goos, arch, _ := strings.Cut(c.target, "-")
	return strings.NewReplacer(
		"{{target}}", goos,
		"{{arch}}", arch,
		"{{current_version}}", c.current,
	).Replace(c.endpoint)
}

// Check returns the newer release, or nil when the running version is current.
func (c *Checker) Check(ctx context.Context) (*Update, error) {
	if !c.limiter.Allow() {
		return nil, ErrThrottled
	}

	url := c.URL()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build update request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "soulsense/"+c.current+" ("+runtime.GOOS+")")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch update manifest: %w", err)
	}
	defer resp.Body.Close()

	// 204 is the conventional "no update" answer
	if resp.StatusCode == http.StatusNoContent {
		c.logger.Debug("Update server reports no update")
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("update manifest: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		return nil, fmt.Errorf("read update manifest: %w", err)
	}
	manifest, err := ParseManifest(body)
	if err != nil {
		return nil, err
	}

	if !manifest.Newer(c.current) {
		c.logger.Debug("Already up to date",
			zap.String("current", c.current),
			zap.String("latest", manifest.Version))
		return nil, nil
	}
	return manifest.UpdateFor(c.current, c.target)
}
