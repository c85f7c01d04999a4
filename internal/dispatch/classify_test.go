package dispatch

import (
	"net/url"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		method string
		rawURL string
		want   Class
	}{
		{"post is write", "POST", "https://api.example.com/v1/sites", ClassAPIWrite},
		{"put is write", "PUT", "https://api.example.com/v1/sites/1", ClassAPIWrite},
		{"delete is write", "DELETE", "https://api.example.com/v1/sites/1", ClassAPIWrite},
		{"non-get wins over asset pattern", "POST", "https://app.example.com/main.4f8a1c2b.js", ClassAPIWrite},
		{"hashed js bundle", "GET", "https://app.example.com/assets/main.4f8a1c2b.js", ClassStaticAsset},
		{"hashed css bundle", "GET", "https://app.example.com/styles.0d9e77aa31.css", ClassStaticAsset},
		{"photo", "GET", "https://app.example.com/uploads/site1.jpg", ClassStaticAsset},
		{"diagram png", "GET", "https://app.example.com/static/cross-section-guide.png", ClassStaticAsset},
		{"api read", "GET", "https://api.example.com/v1/sites?walk=9", ClassAPIRead},
		{"app root", "GET", "https://app.example.com/", ClassAppDocument},
		{"app route", "GET", "https://app.example.com/walks/9/sites", ClassAppDocument},
		{"unhashed js is a document", "GET", "https://app.example.com/legacy.js", ClassAppDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.rawURL)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := Classify(tt.method, u); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
