package download

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/seekerror/logw"
)

// GithubReleaseChecker implements supervisor's UpdateChecker by
// comparing the running version against the latest tagged GitHub release,
// the Go-native equivalent of update_available()'s PyPI version comparison
// in the original client (a straight string inequality, not semver-aware).
type GithubReleaseChecker struct {
	http           HTTPDoer
	releaseAPI     string
	userAgent      string
	ghToken        string
	currentVersion string
}

// NewGithubReleaseChecker returns a checker for repo "owner/name", comparing
// against currentVersion (without a leading "v").
func NewGithubReleaseChecker(client HTTPDoer, repo, userAgent, ghToken, currentVersion string) *GithubReleaseChecker {
	return &GithubReleaseChecker{
		http:           client,
		releaseAPI:     fmt.Sprintf("https://api.github.com/repos/%s/releases/latest", repo),
		userAgent:      userAgent,
		ghToken:        ghToken,
		currentVersion: currentVersion,
	}
}

// HasUpdate reports whether the latest tagged release differs from the
// running version.
func (c *GithubReleaseChecker) HasUpdate(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.releaseAPI, nil)
	if err != nil {
		return false, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.ghToken != "" {
		req.Header.Set("Authorization", "token "+c.ghToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("download: check update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("download: check update: status %d", resp.StatusCode)
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return false, fmt.Errorf("download: decode release: %w", err)
	}

	latest := rel.TagName
	if len(latest) > 0 && latest[0] == 'v' {
		latest = latest[1:]
	}

	if latest == c.currentVersion {
		logw.Infof(ctx, "Client is up to date at %v", c.currentVersion)
		return false, nil
	}
	logw.Infof(ctx, "Update available: %v (running %v)", latest, c.currentVersion)
	return true, nil
}
