package services

import (
	"testing"
	"time"
)

func TestResolvePostedAt(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		text string
		want time.Time
	}{
		{"today", now},
		{"Just posted", now},
		{"yesterday", now.AddDate(0, 0, -1)},
		{"3 days ago", now.AddDate(0, 0, -3)},
		{"3d", now.AddDate(0, 0, -3)},
		{"30d+", now.AddDate(0, 0, -30)},
		{"30+ days ago", now.AddDate(0, 0, -30)},
		{"2 weeks ago", now.AddDate(0, 0, -14)},
		{"5h", now.Add(-5 * time.Hour)},
		{"1 month ago", now.AddDate(0, -1, 0)},
		{"2026-08-28", time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)},
		{"", time.Time{}},
		{"ask the recruiter", time.Time{}},
	}

	for _, c := range cases {
		got := ResolvePostedAt(c.text, now)
		if !got.Equal(c.want) {
			t.Fatalf("%q: expected %v, got %v", c.text, c.want, got)
		}
	}
}
