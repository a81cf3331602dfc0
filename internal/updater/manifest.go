// Package updater polls the release manifest and announces newer versions.
// It never downloads or installs anything.
package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/mod/semver"
)

var ErrNoPlatform = errors.New("no release for this platform")

// Manifest is the release document served at the update endpoint.
type Manifest struct {
	Version   string              `json:"version"`
	Notes     string              `json:"notes"`
	PubDate   string              `json:"pub_date"`
	Platforms map[string]Platform `json:"platforms"`
}

type Platform struct {
	URL       string `json:"url"`
	Signature string `json:"signature"`
}

// Update describes a release newer than the running one.
type Update struct {
	Current   string `json:"current_version"`
	Version   string `json:"version"`
	Notes     string `json:"notes,omitempty"`
	PubDate   string `json:"pub_date,omitempty"`
	URL       string `json:"url"`
	Signature string `json:"signature"`
}

func (u *Update) String() string {
	return fmt.Sprintf("%s available (current %s)", u.Version, u.Current)
}

var archNames = map[string]string{
	"amd64": "x86_64",
	"386":   "i686",
	"arm64": "aarch64",
	"arm":   "armv7",
}

// Target returns the manifest platform key for the running binary, e.g. linux-x86_64.
func Target() string {
	return target(runtime.GOOS, runtime.GOARCH)
}

func target(goos, goarch string) string {
	arch, ok := archNames[goarch]
	if !ok {
		arch = goarch
	}
	return goos + "-" + arch
}

// ParseManifest decodes and sanity checks a manifest body.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if !semver.IsValid(canonical(m.Version)) {
		return nil, fmt.Errorf("manifest version %q is not a semantic version", m.Version)
	}
	return &m, nil
}

// Newer reports whether the manifest carries a version above current.
// A current version that is not semver (a dev build) never updates.
func (m *Manifest) Newer(current string) bool {
	cur := canonical(current)
	if !semver.IsValid(cur) {
		return false
	}
	return semver.Compare(canonical(m.Version), cur) > 0
}

// UpdateFor returns the release for platform key.
func (m *Manifest) UpdateFor(current, key string) (*Update, error) {
	p, ok := m.Platforms[key]
	if !ok || p.URL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoPlatform, key)
	}
	return &Update{
		Current:   current,
		Version:   m.Version,
		Notes:     m.Notes,
		PubDate:   m.PubDate,
		URL:       p.URL,
		Signature: p.Signature,
	}, nil
}

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}
