package sidecar

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var ErrNotFound = errors.New("sidecar executable not found")

var targetTriples = map[string]string{
	"linux/amd64":   "x86_64-unknown-linux-gnu",
	"linux/arm64":   "aarch64-unknown-linux-gnu",
	"darwin/amd64":  "x86_64-apple-darwin",
	"darwin/arm64":  "aarch64-apple-darwin",
	"windows/amd64": "x86_64-pc-windows-msvc",
	"windows/arm64": "aarch64-pc-windows-msvc",
}

// TargetTriple returns the bundler's target triple for the running platform,
// or "" when the platform has none.
func TargetTriple() string {
	return targetTriples[runtime.GOOS+"/"+runtime.GOARCH]
}

// DefaultDirs returns the directories searched for bundled executables:
// bundleDir (or the running executable's directory) and its binaries/ subdir.
func DefaultDirs(bundleDir string) []string {
	if bundleDir == "" {
		if exe, err := os.Executable(); err == nil {
			if resolved, err := filepath.EvalSymlinks(exe); err == nil {
				exe = resolved
			}
			bundleDir = filepath.Dir(exe)
		}
	}
	if bundleDir == "" {
		return nil
	}
	return []string{bundleDir, filepath.Join(bundleDir, "binaries")}
}

// candidates lists the file names a bundled executable may have.
func candidates(name string) []string {
	names := []string{name}
	if triple := TargetTriple(); triple != "" {
		names = append(names, name+"-"+triple)
	}
	if runtime.GOOS == "windows" {
		for i := range names {
			names[i] += ".exe"
		}
	}
	return names
}

// Resolve finds the bundled executable name in dirs.
func Resolve(name string, dirs ...string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid sidecar name %q", name)
	}

	var searched []string
	for _, dir := range dirs {
		for _, candidate := range candidates(name) {
			path := filepath.Join(dir, candidate)
			searched = append(searched, path)

			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if runtime.GOOS != "windows" && info.Mode().Perm()&0111 == 0 {
				continue
			}
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: %q (searched %s)", ErrNotFound, name, strings.Join(searched, ", "))
}
