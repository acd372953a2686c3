package services

import "jobharvest/models"

// Dedupe collapses a batch on the natural key, last occurrence wins.
// Sources repeat cards across pages (sticky promotions, overlapping
// result windows); the later occurrence carries the fresher render.
// Order of first appearance is preserved.
func Dedupe(listings []*models.JobListing) []*models.JobListing {
	index := make(map[string]int, len(listings))
	out := make([]*models.JobListing, 0, len(listings))

	for _, l := range listings {
		key := l.Key()
		if i, seen := index[key]; seen {
			out[i] = l
			continue
		}
		index[key] = len(out)
		out = append(out, l)
	}
	return out
}
