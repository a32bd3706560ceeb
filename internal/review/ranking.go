package review

import (
	"sort"
)

// buildRanking orders eligible applications by weighted score. Ties fall back
// to net referrals, then applicant name, then application id; applicants
// without a weighted score sort last. Ranks are dense, 1..N.
func buildRanking(apps []Application, summaries map[string]ScoreSummary) []RankingEntry {
	entries := make([]RankingEntry, 0, len(apps))
	for _, app := range apps {
		entries = append(entries, RankingEntry{
			ApplicationID:  app.ID,
			ApplicantName:  app.ApplicantName,
			ApplicantEmail: app.ApplicantEmail,
			Track:          app.Track,
			Stage:          app.Stage,
			ScoreSummary:   summaries[app.ID],
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return rankedBefore(entries[i], entries[j])
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func rankedBefore(a, b RankingEntry) bool {
	switch {
	case a.WeightedScore == nil && b.WeightedScore != nil:
		return false
	case a.WeightedScore != nil && b.WeightedScore == nil:
		return true
	case a.WeightedScore != nil && b.WeightedScore != nil && *a.WeightedScore != *b.WeightedScore:
		return *a.WeightedScore > *b.WeightedScore
	}

	netA := a.ReferralCount - a.DeferralCount
	netB := b.ReferralCount - b.DeferralCount
	if netA != netB {
		return netA > netB
	}
	if a.ApplicantName != b.ApplicantName {
		return a.ApplicantName < b.ApplicantName
	}
	return a.ApplicationID < b.ApplicationID
}
