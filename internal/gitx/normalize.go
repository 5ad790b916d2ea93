package gitx

import (
	"net/url"
	"sort"
	"strings"
)

// NormalizeURL converts a git remote URL into a canonical host/owner/repo key
// so that SSH, HTTPS and web URLs of the same repository compare equal.
//
// Rules:
//   - Strip protocol (https://, git://, ssh://) and user (git@)
//   - Convert host:path (scp-like) to host/path
//   - Lowercase host and path
//   - Strip trailing slashes and ".git"
//
// Examples:
//
//	git@github.com:Org/Repo.git  → github.com/org/repo
//	https://github.com/Org/Repo.git → github.com/org/repo
func NormalizeURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	var host, path string

	if !strings.Contains(rawURL, "://") {
		// scp-like syntax: [user@]host:path
		rest := rawURL
		if i := strings.Index(rest, "@"); i >= 0 {
			rest = rest[i+1:]
		}
		colon := strings.Index(rest, ":")
		slash := strings.Index(rest, "/")
		if colon >= 0 && (slash < 0 || colon < slash) {
			host = rest[:colon]
			path = rest[colon+1:]
		} else {
			path = rest
		}
	} else {
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return strings.ToLower(strings.TrimSuffix(strings.TrimRight(rawURL, "/"), ".git"))
		}
		host = parsed.Hostname()
		path = parsed.Path
	}

	path = strings.Trim(path, "/")
	path = strings.TrimSuffix(path, ".git")
	path = strings.TrimRight(path, "/")
	host = strings.ToLower(host)
	path = strings.ToLower(path)

	if host == "" {
		return path
	}
	if path == "" {
		return host
	}
	return host + "/" + path
}

// OwnerRepo extracts the owner and repository name from a remote URL, using
// the last two path segments of its normalized form.
func OwnerRepo(rawURL string) (string, string, bool) {
	key := NormalizeURL(rawURL)
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return "", "", false
	}
	owner, repo := parts[len(parts)-2], parts[len(parts)-1]
	if owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}

// PrimaryRemote selects the preferred remote from a list.
// Prefers "origin", falls back to first alphabetically.
func PrimaryRemote(remoteNames []string) string {
	if len(remoteNames) == 0 {
		return ""
	}
	for _, name := range remoteNames {
		if name == "origin" {
			return "origin"
		}
	}
	sorted := make([]string, len(remoteNames))
	copy(sorted, remoteNames)
	sort.Strings(sorted)
	return sorted[0]
}
