package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key builds the canonical cache key for a request: upper-cased method plus
// the URL with host lowercased, default port dropped and query keys sorted.
// Two requests that are logically identical must always map to the same key,
// regardless of query parameter order or host casing.
func Key(method, rawURL string) string {
	return strings.ToUpper(method) + " " + CanonicalURL(rawURL)
}

// CanonicalURL normalizes a URL for use in a cache key. Unparseable URLs are
// returned as-is: a stable key matters more than a pretty one.
func CanonicalURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	// Drop default ports so http://host:80/x and http://host/x collide.
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	if u.Path == "" {
		u.Path = "/"
	}

	if u.RawQuery != "" {
		u.RawQuery = sortQuery(u.RawQuery)
	}
	u.Fragment = ""

	return u.String()
}

// sortQuery re-encodes a query string with keys (and values per key) sorted.
func sortQuery(rawQuery string) string {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := values[k]
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
