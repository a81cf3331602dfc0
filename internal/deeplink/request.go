package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrSchemeMismatch = errors.New("deep link scheme mismatch")

// Source tells where a deep link entered the process.
type Source string

const (
	SourceArgv      Source = "argv"
	SourceForwarded Source = "forwarded"
)

// Request is one incoming deep link.
type Request struct {
	ID         uuid.UUID
	Raw        string
	URL        *url.URL
	Source     Source
	ReceivedAt time.Time
}

// Parse validates raw against scheme and wraps it in a Request with a fresh ID.
func Parse(raw, scheme string, src Source) (Request, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return Request{}, fmt.Errorf("parse deep link: %w", err)
	}
	if !strings.EqualFold(u.Scheme, scheme) {
		return Request{}, fmt.Errorf("%w: got %q, want %q", ErrSchemeMismatch, u.Scheme, scheme)
	}

	return Request{
		ID:         uuid.New(),
		Raw:        raw,
		URL:        u,
		Source:     src,
		ReceivedAt: time.Now(),
	}, nil
}

// Action returns host and path without slashes: soulsense://auth/callback -> "auth/callback".
func (r Request) Action() string {
	if r.URL == nil {
		return ""
	}
	return strings.Trim(r.URL.Host+r.URL.Path, "/")
}

// Param returns the first query value for key.
func (r Request) Param(key string) string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Query().Get(key)
}

// Redacted returns the link without its query and fragment, safe to log or persist.
func (r Request) Redacted() string {
	if r.URL == nil {
		return ""
	}
	u := *r.URL
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}

// FromArgs picks the arguments that look like links for scheme.
func FromArgs(args []string, scheme string) []string {
	prefix := strings.ToLower(scheme) + ":"
	var links []string
	for _, arg := range args {
		if strings.HasPrefix(strings.ToLower(arg), prefix) {
			links = append(links, arg)
		}
	}
	return links
}
