package actions

import (
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// BrowserOpener opens URLs with the platform's default handler.
type BrowserOpener struct {
	launcher *ProcessLauncher
	command  func(target string) []string
	logger   *zap.Logger
}

// NewBrowserOpener creates an opener that launches through l.
func NewBrowserOpener(l *ProcessLauncher, logger *zap.Logger) *BrowserOpener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserOpener{
		launcher: l,
		command:  browserCommand(runtime.GOOS),
		logger:   logger,
	}
}

// Open opens rawURL. Errors are logged only.
func (o *BrowserOpener) Open(rawURL string) {
	if err := o.open(rawURL); err != nil {
		o.logger.Warn("failed to open url", zap.String("url", rawURL), zap.Error(err))
	}
}

func (o *BrowserOpener) open(rawURL string) error {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return err
	}
	if err := o.launcher.start(o.command(target)); err != nil {
		return &ExecutionError{Command: target, Err: err}
	}
	return nil
}

// NormalizeURL validates rawURL and adds https:// when no scheme is given.
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", errors.New("empty url")
	}
	if !strings.Contains(rawURL, "://") && !strings.HasPrefix(rawURL, "mailto:") {
		rawURL = "https://" + rawURL
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "file", "mailto":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Scheme != "mailto" && u.Scheme != "file" && u.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", rawURL)
	}
	return u.String(), nil
}

func browserCommand(goos string) func(string) []string {
	switch goos {
	case "darwin":
		return func(target string) []string { return []string{"open", target} }
	case "windows":
		return func(target string) []string { return []string{"rundll32", "url.dll,FileProtocolHandler", target} }
	default:
		return func(target string) []string { return []string{"xdg-open", target} }
	}
}
