package services

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeRe = regexp.MustCompile(`(?i)^(\d+)\+?\s*(d|day|days|h|hr|hour|hours|w|week|weeks|mo|month|months)(\s+ago)?\+?$`)
	isoDateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// ResolvePostedAt turns a source's posted-age text into an absolute
// timestamp relative to now. Sources publish anything from ISO dates to
// "3d" or "30+ days ago"; unparseable text returns the zero time and
// the caller records a warning instead of failing the record.
func ResolvePostedAt(text string, now time.Time) time.Time {
	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return time.Time{}
	}

	switch text {
	case "today", "just posted", "new":
		return now
	case "yesterday":
		return now.AddDate(0, 0, -1)
	}

	if isoDateRe.MatchString(text) {
		if t, err := time.Parse("2006-01-02", text); err == nil {
			return t
		}
	}
	if t, err := time.Parse("2 jan 2006", text); err == nil {
		return t
	}

	if m := relativeRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}
		}
		switch m[2][0] {
		case 'h':
			return now.Add(-time.Duration(n) * time.Hour)
		case 'd':
			return now.AddDate(0, 0, -n)
		case 'w':
			return now.AddDate(0, 0, -n*7)
		case 'm':
			return now.AddDate(0, -n, 0)
		}
	}

	return time.Time{}
}
