package cache

import (
	"testing"
)

func TestKey_Deterministic(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"query order", "https://api.example.com/sites?walk=9&limit=5", "https://api.example.com/sites?limit=5&walk=9"},
		{"host casing", "https://API.Example.com/sites", "https://api.example.com/sites"},
		{"default https port", "https://api.example.com:443/sites", "https://api.example.com/sites"},
		{"default http port", "http://api.example.com:80/sites", "http://api.example.com/sites"},
		{"empty path", "https://api.example.com", "https://api.example.com/"},
		{"fragment stripped", "https://api.example.com/sites#top", "https://api.example.com/sites"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := Key("GET", tt.a)
			kb := Key("get", tt.b)
			if ka != kb {
				t.Errorf("keys differ:\n  %s\n  %s", ka, kb)
			}
		})
	}
}

func TestKey_Distinct(t *testing.T) {
	tests := []struct {
		name           string
		m1, u1, m2, u2 string
	}{
		{"different method", "GET", "https://api.example.com/sites", "DELETE", "https://api.example.com/sites"},
		{"different path", "GET", "https://api.example.com/sites", "GET", "https://api.example.com/walks"},
		{"different query value", "GET", "https://api.example.com/sites?walk=9", "GET", "https://api.example.com/sites?walk=10"},
		{"non-default port kept", "GET", "https://api.example.com:8443/sites", "GET", "https://api.example.com/sites"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Key(tt.m1, tt.u1) == Key(tt.m2, tt.u2) {
				t.Errorf("keys should differ: %s %s vs %s %s", tt.m1, tt.u1, tt.m2, tt.u2)
			}
		})
	}
}

func TestCanonicalURL_UnparseableReturnedAsIs(t *testing.T) {
	raw := "://not-a-url"
	if got := CanonicalURL(raw); got != raw {
		t.Errorf("got %q, want %q", got, raw)
	}
}
