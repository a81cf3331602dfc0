package deeplink

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Registrar installs the OS-level handler for a URL scheme.
type Registrar interface {
	Register(ctx context.Context, scheme string) error
}

// RunFunc runs an external command. Tests replace it.
type RunFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// XDGRegistrar writes a desktop entry advertising x-scheme-handler/<scheme>
// and makes it the default handler through xdg-mime.
type XDGRegistrar struct {
	Dir        string
	AppName    string
	Identifier string
	Executable string
	Run        RunFunc
	Logger     *zap.Logger
}

func (r *XDGRegistrar) DesktopFile() string {
	return filepath.Join(r.Dir, r.Identifier+".desktop")
}

func (r *XDGRegistrar) Register(ctx context.Context, scheme string) error {
	if err := os.MkdirAll(r.Dir, 0755); err != nil {
		return fmt.Errorf("create applications dir: %w", err)
	}

	entry := strings.Join([]string{
		"[Desktop Entry]",
		"Type=Application",
		"Name=" + r.AppName,
		"Exec=" + quoteExec(r.Executable) + " %u",
		"Terminal=false",
		"NoDisplay=true",
		"MimeType=x-scheme-handler/" + scheme + ";",
		"",
	}, "\n")

	path := r.DesktopFile()
	if err := os.WriteFile(path, []byte(entry), 0644); err != nil {
		return fmt.Errorf("write desktop entry: %w", err)
	}

	run := r.Run
	if run == nil {
		run = execRun
	}
	err := run(ctx, "xdg-mime", "default", filepath.Base(path), "x-scheme-handler/"+scheme)
	if err != nil {
		// the entry alone is enough for most desktop environments
		r.Logger.Warn("xdg-mime failed, scheme handler may not be the default",
			zap.String("scheme", scheme), zap.Error(err))
		return nil
	}

	r.Logger.Info("Registered URL scheme",
		zap.String("scheme", scheme),
		zap.String("desktop_file", path))
	return nil
}

func quoteExec(path string) string {
	if strings.ContainsAny(path, " \t\"") {
		return `"` + strings.ReplaceAll(path, `"`, `\"`) + `"`
	}
	return path
}

// NoopRegistrar logs and does nothing. The installer owns scheme registration
// on platforms without XDG.
type NoopRegistrar struct {
	Logger *zap.Logger
}

func (r NoopRegistrar) Register(_ context.Context, scheme string) error {
	r.Logger.Debug("Scheme registration left to the installer",
		zap.String("scheme", scheme),
		zap.String("os", runtime.GOOS))
	return nil
}

// NewRegistrar picks the registrar for the running OS. dir overrides the
// XDG applications directory.
func NewRegistrar(appName, identifier, dir string, logger *zap.Logger) Registrar {
	if runtime.GOOS != "linux" {
		return NoopRegistrar{Logger: logger}
	}

	if dir == "" {
		base := os.Getenv("XDG_DATA_HOME")
		if base == "" {
			home, _ := os.UserHomeDir()
			base = filepath.Join(home, ".local", "share")
		}
		dir = filepath.Join(base, "applications")
	}

	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}

	return &XDGRegistrar{
		Dir:        dir,
		AppName:    appName,
		Identifier: identifier,
		Executable: exe,
		Logger:     logger,
	}
}
