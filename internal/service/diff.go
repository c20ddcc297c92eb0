package service

import "github.com/godilite/sentiment-sync/internal/domain"

// Unscored returns the end-user comments of ticketID whose vector id is not
// in stored. Input order is kept, so oldest-first in gives oldest-first out.
// Neither input is modified.
func Unscored(ticketID string, live []domain.Comment, stored map[string]struct{}) []domain.Comment {
	out := make([]domain.Comment, 0, len(live))
	seen := make(map[string]struct{}, len(live))

	for _, c := range live {
		if !c.IsEndUser() {
			continue
		}
		id := domain.VectorID(ticketID, c.ID)
		if _, ok := stored[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, c)
	}
	return out
}

// VectorIDSet indexes vector records by id.
func VectorIDSet(records []domain.VectorRecord) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.ID] = struct{}{}
	}
	return set
}
