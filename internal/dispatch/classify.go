package dispatch

import (
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Class buckets a request for strategy selection.
type Class int

const (
	// ClassAPIWrite: any non-GET request. Network-only, queued on failure.
	ClassAPIWrite Class = iota
	// ClassStaticAsset: build-hashed bundles and media. Cache-first.
	ClassStaticAsset
	// ClassAPIRead: dynamic API responses. Network-first, cache fallback.
	ClassAPIRead
	// ClassAppDocument: everything else, the navigable app shell.
	// Network-first with shell substitution on failure.
	ClassAppDocument
)

func (c Class) String() string {
	switch c {
	case ClassAPIWrite:
		return "api-write"
	case ClassStaticAsset:
		return "static-asset"
	case ClassAPIRead:
		return "api-read"
	case ClassAppDocument:
		return "app-document"
	}
	return "unknown"
}

// hashedAssetPattern matches build-generated immutable asset names like
// main.4f8a1c2b.js or styles.0d9e77aa31.css.
var hashedAssetPattern = regexp.MustCompile(`\.[0-9a-f]{8,}\.(js|css|map|woff2?)$`)

// mediaExtensions are served cache-first as long-lived static assets.
var mediaExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true,
	".mp4": true, ".webm": true,
}

// apiPathPrefix marks dynamic API endpoints.
const apiPathPrefix = "/v1/"

// Classify assigns a request to a strategy class. Rules are evaluated in
// order; first match wins.
func Classify(method string, u *url.URL) Class {
	if !strings.EqualFold(method, http.MethodGet) {
		return ClassAPIWrite
	}
	p := strings.ToLower(u.Path)
	if hashedAssetPattern.MatchString(p) {
		return ClassStaticAsset
	}
	if mediaExtensions[path.Ext(p)] {
		return ClassStaticAsset
	}
	if strings.HasPrefix(p, apiPathPrefix) {
		return ClassAPIRead
	}
	return ClassAppDocument
}
