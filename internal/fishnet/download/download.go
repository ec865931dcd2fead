// Package download implements the binary self-update and NNUE network-file
// fetching the original client performs before workers start: pick a
// precompiled engine binary for the running platform and CPU, fetch it from
// GitHub (and any missing NNUE files from the URLs the config's NNUE section
// supplies), and make the engine binary
// executable. All writes happen here and only here — spec §5 requires NNUE
// files on disk to be read-only once workers are running.
package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lichess-org/fishnet-go/internal/fishnet/cpuprobe"
	"github.com/seekerror/logw"
)

const releaseAPI = "https://api.github.com/repos/niklasf/Stockfish/releases/latest"

// HTTPDoer is the subset of *http.Client this package needs; satisfied by
// the stdlib client directly, kept as an interface so tests can substitute a
// recorder.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Downloader fetches engine binaries and NNUE network files into an engine
// directory.
type Downloader struct {
	http      HTTPDoer
	userAgent string
	ghToken   string
}

// New returns a Downloader. ghToken may be empty; when set it is sent as a
// GitHub API bearer token to escape unauthenticated rate limiting, matching
// spec §6's GITHUB_API_TOKEN environment variable.
func New(client HTTPDoer, userAgent, ghToken string) *Downloader {
	return &Downloader{http: client, userAgent: userAgent, ghToken: ghToken}
}

// EngineFilename returns the platform- and CPU-appropriate precompiled
// engine filename, matching stockfish_filename in the original client.
func EngineFilename(caps cpuprobe.Capabilities) string {
	suffix := caps.BinarySuffix()
	machine := strings.ToLower(runtime.GOARCH)

	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("stockfish-windows-%s%s.exe", machine, suffix)
	case "darwin":
		return fmt.Sprintf("stockfish-osx-%s", machine)
	default:
		return fmt.Sprintf("stockfish-%s%s", machine, suffix)
	}
}

type release struct {
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// EnsureEngine downloads filename into engineDir unless a local copy is
// already at least as new as the latest release (via If-Modified-Since),
// and marks it executable. It returns the full path to the engine binary.
func (d *Downloader) EnsureEngine(ctx context.Context, engineDir, filename string) (string, error) {
	path := filepath.Join(engineDir, filename)
	logw.Infof(ctx, "Engine target path: %v", path)

	headers := map[string]string{}
	if info, err := os.Stat(path); err == nil {
		headers["If-Modified-Since"] = info.ModTime().UTC().Format(http.TimeFormat)
	}

	logw.Infof(ctx, "Looking up %v ...", filename)
	rel, notModified, err := d.fetchLatestRelease(ctx, headers)
	if err != nil {
		return "", err
	}
	if notModified {
		logw.Infof(ctx, "Local %v is newer than release", filename)
		return path, nil
	}
	logw.Infof(ctx, "Latest stockfish release is tagged %v", rel.TagName)

	var url string
	for _, a := range rel.Assets {
		if a.Name == filename {
			url = a.BrowserDownloadURL
			break
		}
	}
	if url == "" {
		return "", fmt.Errorf("download: no precompiled %v for your platform", filename)
	}

	logw.Infof(ctx, "Downloading %v ...", filename)
	if err := d.fetchFile(ctx, url, path); err != nil {
		return "", err
	}
	if err := os.Chmod(path, 0o755); err != nil {
		return "", fmt.Errorf("download: chmod %v: %w", path, err)
	}
	return path, nil
}

func (d *Downloader) fetchLatestRelease(ctx context.Context, headers map[string]string) (release, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, releaseAPI, nil)
	if err != nil {
		return release{}, false, err
	}
	d.applyHeaders(req, headers)

	resp, err := d.http.Do(req)
	if err != nil {
		return release{}, false, fmt.Errorf("download: release lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return release{}, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return release{}, false, fmt.Errorf("download: failed to look up latest stockfish release (status %d)", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return release{}, false, fmt.Errorf("download: decode release: %w", err)
	}
	return rel, false, nil
}

func (d *Downloader) fetchFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	d.applyHeaders(req, nil)

	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: fetch %v: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download: fetch %v: status %d", url, resp.StatusCode)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("download: create %v: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("download: write %v: %w", dest, err)
	}
	return nil
}

func (d *Downloader) applyHeaders(req *http.Request, extra map[string]string) {
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}
	if d.ghToken != "" {
		req.Header.Set("Authorization", "token "+d.ghToken)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

// EnsureNNUE downloads the network parameter file for name into engineDir if
// not already present locally, skipping the write entirely when it exists —
// matching spec §5's precondition that NNUE files are read-only once
// workers are running: this is the only place that writes them, and only
// before Run starts the pool.
func (d *Downloader) EnsureNNUE(ctx context.Context, engineDir, name, url string) (string, error) {
	path := filepath.Join(engineDir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	logw.Infof(ctx, "Downloading NNUE network %v ...", name)
	if err := d.fetchFile(ctx, url, path); err != nil {
		return "", err
	}
	return path, nil
}

// EnsureNNUENets downloads every missing network file named in nets (a
// variant NNUENetKey mapped to its download URL, from the config file's NNUE
// section) and returns the net key mapped to its local path, ready to hand
// to the executor as its EvalFile lookup table.
func (d *Downloader) EnsureNNUENets(ctx context.Context, engineDir string, nets map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(nets))
	for key, url := range nets {
		name := path.Base(url)
		p, err := d.EnsureNNUE(ctx, engineDir, name, url)
		if err != nil {
			return nil, fmt.Errorf("download: NNUE net %v: %w", key, err)
		}
		out[key] = p
	}
	return out, nil
}

// DefaultClient returns an *http.Client suitable as an HTTPDoer with a
// generous timeout for large binary downloads.
func DefaultClient() *http.Client {
	return &http.Client{Timeout: 90 * time.Second}
}
