package repo

import (
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+/[A-Za-z0-9._-]+$`)

// ParseSlug splits a canonical "owner/repo" slug into its components.
func ParseSlug(slug string) (owner, name string, err error) {
	parts := strings.SplitN(slug, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "/") {
		return "", "", fmt.Errorf("invalid repo slug %q, expected owner/repo", slug)
	}
	return parts[0], parts[1], nil
}

// SlugFromRemoteURL extracts the "owner/repo" slug from a git remote URL,
// accepting both SSH (git@host:owner/repo.git) and HTTPS
// (https://host/owner/repo.git) forms.
func SlugFromRemoteURL(remoteURL string) (string, error) {
	trimmed := strings.TrimSuffix(remoteURL, ".git")

	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
		if slashIdx := strings.Index(trimmed, "/"); slashIdx >= 0 {
			trimmed = trimmed[slashIdx+1:]
		}
	} else if idx := strings.Index(trimmed, ":"); idx >= 0 && strings.Contains(trimmed, "@") {
		trimmed = trimmed[idx+1:]
	}

	trimmed = strings.Trim(trimmed, "/")
	if !slugPattern.MatchString(trimmed) {
		return "", fmt.Errorf("could not derive owner/repo slug from remote url %q", remoteURL)
	}
	return trimmed, nil
}
