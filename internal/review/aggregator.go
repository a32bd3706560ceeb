package review

import (
	"math"
)

// reviewerStats are one reviewer's scoring habits across a phase.
type reviewerStats struct {
	mean         float64
	std          float64
	applications int
}

// normalize returns the reviewer's z-score for x. Reviewers who scored fewer
// than two applications, or always gave the same score, pass through raw.
func (s reviewerStats) normalize(x float64) float64 {
	if s.applications < 2 || s.std == 0 {
		return x
	}
	return (x - s.mean) / s.std
}

// computeReviewerStats collects the population mean and standard deviation of
// every configured-category score each reviewer gave in the phase.
func computeReviewerStats(cfg *PhaseConfig, reviews []Review) map[string]reviewerStats {
	values := make(map[string][]float64)
	apps := make(map[string]map[string]bool)

	for _, r := range reviews {
		scored := false
		for _, c := range cfg.Categories {
			if v, ok := r.Scores[c.Key]; ok {
				values[r.ReviewerEmail] = append(values[r.ReviewerEmail], float64(v))
				scored = true
			}
		}
		if !scored {
			continue
		}
		if apps[r.ReviewerEmail] == nil {
			apps[r.ReviewerEmail] = make(map[string]bool)
		}
		apps[r.ReviewerEmail][r.ApplicationID] = true
	}

	stats := make(map[string]reviewerStats, len(values))
	for email, vs := range values {
		var sum float64
		for _, v := range vs {
			sum += v
		}
		mean := sum / float64(len(vs))

		var sq float64
		for _, v := range vs {
			sq += (v - mean) * (v - mean)
		}
		stats[email] = reviewerStats{
			mean:         mean,
			std:          math.Sqrt(sq / float64(len(vs))),
			applications: len(apps[email]),
		}
	}
	return stats
}

// AggregateScores summarizes reviews per application. reviews must hold every
// review of the (cycle, phase) so normalization sees each reviewer's full
// history; only categories present in cfg are counted.
func AggregateScores(cfg *PhaseConfig, reviews []Review) map[string]ScoreSummary {
	var stats map[string]reviewerStats
	if cfg.Normalize {
		stats = computeReviewerStats(cfg, reviews)
	}

	byApp := make(map[string][]Review)
	for _, r := range reviews {
		byApp[r.ApplicationID] = append(byApp[r.ApplicationID], r)
	}

	out := make(map[string]ScoreSummary, len(byApp))
	for appID, rs := range byApp {
		out[appID] = summarize(cfg, rs, stats)
	}
	return out
}

func summarize(cfg *PhaseConfig, reviews []Review, stats map[string]reviewerStats) ScoreSummary {
	s := ScoreSummary{ReviewCount: len(reviews)}

	catSum := make([]float64, len(cfg.Categories))
	catN := make([]int, len(cfg.Categories))
	var avgSum float64
	var avgN int

	for _, r := range reviews {
		switch r.ReferralSignal {
		case SignalReferral:
			s.ReferralCount++
		case SignalDeferral:
			s.DeferralCount++
		}

		var rawSum float64
		var rawN int
		for i, c := range cfg.Categories {
			v, ok := r.Scores[c.Key]
			if !ok {
				continue
			}
			x := float64(v)
			rawSum += x
			rawN++

			if stats != nil {
				x = stats[r.ReviewerEmail].normalize(x)
			}
			catSum[i] += x
			catN[i]++
		}
		if rawN > 0 {
			avgSum += rawSum / float64(rawN)
			avgN++
		}
	}

	if avgN > 0 {
		avg := avgSum / float64(avgN)
		s.AverageScore = &avg
	}

	var weighted, totalWeight float64
	for i, c := range cfg.Categories {
		if catN[i] == 0 {
			continue
		}
		weighted += catSum[i] / float64(catN[i]) * c.Weight
		totalWeight += c.Weight
	}
	if totalWeight > 0 {
		ws := weighted/totalWeight +
			cfg.ReferralWeights.Advocate*float64(s.ReferralCount) +
			cfg.ReferralWeights.Oppose*float64(s.DeferralCount)
		s.WeightedScore = &ws
	}

	return s
}

// Round1 rounds to one decimal place for display.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
