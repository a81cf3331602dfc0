package sidecar

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Probe polls the sidecar's liveness endpoint until it answers 200.
type Probe struct {
	url    string
	client *retryablehttp.Client
	logger *zap.Logger
}

// HealthURL joins host, port and path into the liveness URL.
func HealthURL(host string, port int, path string) string {
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

func NewProbe(url string, logger *zap.Logger) *Probe {
	client := retryablehttp.NewClient()
	client.RetryMax = 1 << 16
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = time.Second
	client.HTTPClient.Timeout = 2 * time.Second
	// attempts are expected to fail while the sidecar boots
	client.Logger = nil

	return &Probe{
		url:    url,
		client: client,
		logger: logger,
	}
}

// WaitReady blocks until the sidecar is healthy, timeout elapses or ctx is done.
func (p *Probe) WaitReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar not ready after %v: %w", time.Since(started).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sidecar health check returned HTTP %d", resp.StatusCode)
	}

	p.logger.Info("Sidecar ready",
		zap.String("url", p.url),
		zap.Duration("elapsed", time.Since(started)))
	return nil
}
