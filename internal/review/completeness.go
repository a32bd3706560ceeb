package review

import (
	"sort"
)

// computeCompleteness measures how much of the eligible set each reviewer has
// covered. reviewers is everyone with a review anywhere in the cycle, so a
// reviewer who has not started this phase shows up at 0%.
func computeCompleteness(cfg *PhaseConfig, apps []Application, reviews []Review, reviewers []string, names map[string]string) *CompletenessSnapshot {
	eligible := make(map[string]bool, len(apps))
	for _, a := range apps {
		eligible[a.ID] = true
	}

	perApp := make(map[string]map[string]bool)
	perReviewer := make(map[string]map[string]bool)
	for _, r := range reviews {
		if !eligible[r.ApplicationID] {
			continue
		}
		if perApp[r.ApplicationID] == nil {
			perApp[r.ApplicationID] = make(map[string]bool)
		}
		perApp[r.ApplicationID][r.ReviewerEmail] = true

		if perReviewer[r.ReviewerEmail] == nil {
			perReviewer[r.ReviewerEmail] = make(map[string]bool)
		}
		perReviewer[r.ReviewerEmail][r.ApplicationID] = true
	}

	snap := &CompletenessSnapshot{
		TotalApplicants:      len(apps),
		MinReviewersRequired: cfg.MinReviewersRequired,
		Reviewers:            []ReviewerProgress{},
		IncompleteAdmins:     []ReviewerProgress{},
	}
	for _, a := range apps {
		n := len(perApp[a.ID])
		if n > 0 {
			snap.ApplicantsWithReviews++
		}
		if n >= cfg.MinReviewersRequired {
			snap.ApplicantsFullyReviewed++
		}
	}

	seen := make(map[string]bool)
	all := make([]string, 0, len(reviewers)+len(perReviewer))
	for _, email := range reviewers {
		if !seen[email] {
			seen[email] = true
			all = append(all, email)
		}
	}
	for email := range perReviewer {
		if !seen[email] {
			seen[email] = true
			all = append(all, email)
		}
	}
	sort.Strings(all)

	for _, email := range all {
		p := ReviewerProgress{
			Email:    email,
			Name:     displayName(names, email),
			Reviewed: len(perReviewer[email]),
			Total:    len(apps),
		}
		if p.Total == 0 {
			p.Percentage = 100
		} else {
			p.Percentage = float64(p.Reviewed) / float64(p.Total) * 100
		}
		snap.Reviewers = append(snap.Reviewers, p)
		if p.Percentage < 100 {
			snap.IncompleteAdmins = append(snap.IncompleteAdmins, p)
		}
	}

	sort.SliceStable(snap.IncompleteAdmins, func(i, j int) bool {
		return snap.IncompleteAdmins[i].Percentage < snap.IncompleteAdmins[j].Percentage
	})

	return snap
}

func displayName(names map[string]string, email string) string {
	if n, ok := names[email]; ok && n != "" {
		return n
	}
	return email
}
