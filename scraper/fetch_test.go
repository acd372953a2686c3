package scraper

import "testing"

func TestDetectChallenge(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"ok page", 200, "<html>jobs</html>", false},
		{"rate limited", 429, "", true},
		{"forbidden", 403, "", true},
		{"redirect to login wall", 302, "", true},
		{"cloudflare challenge", 200, "<title>Attention Required! | Cloudflare</title>", true},
		{"recaptcha", 200, `<div class="g-recaptcha"></div>`, true},
		{"incapsula", 200, "Request unsuccessful. Incapsula incident ID: 1", true},
		{"server error", 500, "oops", false},
	}

	for _, c := range cases {
		if got := detectChallenge(c.status, []byte(c.body)); got != c.want {
			t.Fatalf("%s: detectChallenge(%d) = %v, want %v", c.name, c.status, got, c.want)
		}
	}
}
