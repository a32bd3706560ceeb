// Package review implements the phase review engine: review storage rules,
// score aggregation, completeness tracking, ranking, cutoffs and the phase
// lifecycle (open, finalized, unlocked, reverted).
package review

import (
	"time"
)

// Stage is an applicant's position in the recruitment pipeline.
type Stage string

const (
	StageNotStarted      Stage = "not_started"
	StageDraft           Stage = "draft"
	StageSubmitted       Stage = "submitted"
	StageUnderReview     Stage = "under_review"
	StageCoffeeChat      Stage = "coffee_chat"
	StageInterviewRound1 Stage = "interview_round1"
	StageInterviewRound2 Stage = "interview_round2"
	StageFinalReview     Stage = "final_review"
	StageWaitlisted      Stage = "waitlisted"
	StageAccepted        Stage = "accepted"
	StageRejected        Stage = "rejected"
	StageWithdrawn       Stage = "withdrawn"
)

var allStages = []Stage{
	StageNotStarted, StageDraft, StageSubmitted, StageUnderReview, StageCoffeeChat,
	StageInterviewRound1, StageInterviewRound2, StageFinalReview, StageWaitlisted,
	StageAccepted, StageRejected, StageWithdrawn,
}

func (s Stage) Valid() bool {
	for _, st := range allStages {
		if st == s {
			return true
		}
	}
	return false
}

// Phase is a review round.
type Phase string

const (
	PhaseApplication     Phase = "application"
	PhaseInterviewRound1 Phase = "interview_round1"
	PhaseInterviewRound2 Phase = "interview_round2"
)

// PhaseStatus is the lifecycle state of a phase.
type PhaseStatus string

const (
	PhaseStatusOpen      PhaseStatus = "open"
	PhaseStatusFinalized PhaseStatus = "finalized"
)

// ReferralSignal is a reviewer's advocate/oppose flag on an applicant.
type ReferralSignal string

const (
	SignalReferral ReferralSignal = "referral"
	SignalNeutral  ReferralSignal = "neutral"
	SignalDeferral ReferralSignal = "deferral"
)

func (s ReferralSignal) Valid() bool {
	switch s {
	case SignalReferral, SignalNeutral, SignalDeferral:
		return true
	}
	return false
}

// Application is the slice of an applicant record the engine reads. Only
// Stage is ever written back.
type Application struct {
	ID             string            `json:"id"`
	CycleID        string            `json:"cycleId"`
	Track          string            `json:"track"`
	Stage          Stage             `json:"stage"`
	ApplicantName  string            `json:"applicantName"`
	ApplicantEmail string            `json:"applicantEmail"`
	Answers        map[string]string `json:"answers,omitempty"`
	Files          []string          `json:"files,omitempty"`
}

// Review is one reviewer's assessment of one applicant in one phase.
type Review struct {
	ApplicationID  string            `json:"applicationId"`
	CycleID        string            `json:"cycleId"`
	Phase          Phase             `json:"phase"`
	ReviewerEmail  string            `json:"reviewerEmail"`
	Scores         map[string]int    `json:"scores"`
	Notes          string            `json:"notes,omitempty"`
	QuestionNotes  map[string]string `json:"questionNotes,omitempty"`
	ReferralSignal ReferralSignal    `json:"referralSignal"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// ScoringCategory is one rubric dimension.
type ScoringCategory struct {
	Key          string         `json:"key" validate:"required,max=64"`
	Label        string         `json:"label"`
	Weight       float64        `json:"weight" validate:"gt=0"`
	Mandatory    bool           `json:"mandatory"`
	Descriptions map[int]string `json:"descriptions,omitempty" validate:"omitempty,dive,keys,min=1,max=5,endkeys"`
}

type InterviewQuestion struct {
	Key    string `json:"key" validate:"required,max=64"`
	Prompt string `json:"prompt" validate:"required"`
}

// ReferralWeights are added to the weighted score once per referral and once
// per deferral.
type ReferralWeights struct {
	Advocate float64 `json:"advocate"`
	Oppose   float64 `json:"oppose"`
}

// PhaseConfig is the per (cycle, phase) settings and lifecycle row.
type PhaseConfig struct {
	CycleID              string              `json:"cycleId" validate:"required"`
	Phase                Phase               `json:"phase" validate:"required"`
	Categories           []ScoringCategory   `json:"categories" validate:"required,min=1,unique=Key,dive"`
	MinReviewersRequired int                 `json:"minReviewersRequired" validate:"gte=1"`
	ReferralWeights      ReferralWeights     `json:"referralWeights"`
	InterviewQuestions   []InterviewQuestion `json:"interviewQuestions,omitempty" validate:"omitempty,unique=Key,dive"`
	Normalize            bool                `json:"normalize"`
	Status               PhaseStatus         `json:"status" validate:"oneof=open finalized"`
	CutoffAppliedAt      *time.Time          `json:"cutoffAppliedAt,omitempty"`
	Version              int64               `json:"version"`
	UpdatedAt            time.Time           `json:"updatedAt"`
}

func (c *PhaseConfig) Finalized() bool {
	return c.Status == PhaseStatusFinalized
}

// Category returns the configured category with the given key.
func (c *PhaseConfig) Category(key string) (ScoringCategory, bool) {
	for _, cat := range c.Categories {
		if cat.Key == key {
			return cat, true
		}
	}
	return ScoringCategory{}, false
}

func (c *PhaseConfig) clone() *PhaseConfig {
	out := *c
	out.Categories = make([]ScoringCategory, len(c.Categories))
	for i, cat := range c.Categories {
		out.Categories[i] = cat
		if cat.Descriptions != nil {
			out.Categories[i].Descriptions = make(map[int]string, len(cat.Descriptions))
			for k, v := range cat.Descriptions {
				out.Categories[i].Descriptions[k] = v
			}
		}
	}
	out.InterviewQuestions = append([]InterviewQuestion(nil), c.InterviewQuestions...)
	if c.CutoffAppliedAt != nil {
		t := *c.CutoffAppliedAt
		out.CutoffAppliedAt = &t
	}
	return &out
}

// ScoreSummary is the aggregate of one applicant's reviews in a phase.
// Scores are nil when no review carries a score for a configured category.
type ScoreSummary struct {
	AverageScore  *float64 `json:"averageScore"`
	WeightedScore *float64 `json:"weightedScore"`
	ReviewCount   int      `json:"reviewCount"`
	ReferralCount int      `json:"referralCount"`
	DeferralCount int      `json:"deferralCount"`
}

// RankingEntry is one row of a phase ranking.
type RankingEntry struct {
	Rank           int    `json:"rank"`
	ApplicationID  string `json:"applicationId"`
	ApplicantName  string `json:"applicantName"`
	ApplicantEmail string `json:"applicantEmail"`
	Track          string `json:"track"`
	Stage          Stage  `json:"stage"`
	ScoreSummary
}

// Ranking is the ordered applicant list of a phase.
type Ranking struct {
	CycleID     string         `json:"cycleId"`
	Phase       Phase          `json:"phase"`
	Track       string         `json:"track,omitempty"`
	Entries     []RankingEntry `json:"entries"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// ReviewerProgress is one reviewer's coverage of the eligible set.
type ReviewerProgress struct {
	Email      string  `json:"email"`
	Name       string  `json:"name"`
	Reviewed   int     `json:"reviewed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// CompletenessSnapshot is the review coverage of a phase.
type CompletenessSnapshot struct {
	TotalApplicants         int                `json:"totalApplicants"`
	ApplicantsWithReviews   int                `json:"applicantsWithReviews"`
	ApplicantsFullyReviewed int                `json:"applicantsFullyReviewed"`
	MinReviewersRequired    int                `json:"minReviewersRequired"`
	Reviewers               []ReviewerProgress `json:"reviewers"`
	IncompleteAdmins        []ReviewerProgress `json:"incompleteAdmins"`
}

// Complete reports whether every listed reviewer covered the whole set.
func (s *CompletenessSnapshot) Complete() bool {
	return len(s.IncompleteAdmins) == 0
}

// CutoffAction is what a cutoff does to an applicant.
type CutoffAction string

const (
	ActionAdvance CutoffAction = "advance"
	ActionReject  CutoffAction = "reject"
)

func (a CutoffAction) Valid() bool {
	return a == ActionAdvance || a == ActionReject
}

func (a CutoffAction) opposite() CutoffAction {
	if a == ActionAdvance {
		return ActionReject
	}
	return ActionAdvance
}

// Override replaces the natural decision for one applicant.
type Override struct {
	ApplicationID string       `json:"applicationId" validate:"required"`
	Action        CutoffAction `json:"action" validate:"required,oneof=advance reject"`
	Reason        string       `json:"reason,omitempty"`
}

// CutoffCriteria selects who advances naturally. At least one field is set.
type CutoffCriteria struct {
	TopN             *int     `json:"topN,omitempty" validate:"omitempty,gte=0"`
	MinWeightedScore *float64 `json:"minWeightedScore,omitempty"`
}

// Decision is the outcome of a cutoff for one applicant.
type Decision struct {
	ApplicationID  string       `json:"applicationId"`
	ApplicantName  string       `json:"applicantName"`
	ApplicantEmail string       `json:"applicantEmail"`
	Track          string       `json:"track,omitempty"`
	Rank           int          `json:"rank"`
	WeightedScore  *float64     `json:"weightedScore"`
	NaturalAction  CutoffAction `json:"naturalAction"`
	Action         CutoffAction `json:"action"`
	Overridden     bool         `json:"overridden"`
	Reason         string       `json:"reason,omitempty"`
	FromStage      Stage        `json:"fromStage"`
	ToStage        Stage        `json:"toStage"`
}

// CutoffRecord is the persisted result of one applied cutoff. It is the
// snapshot revert restores from.
type CutoffRecord struct {
	ID         string         `json:"id"`
	CycleID    string         `json:"cycleId"`
	Phase      Phase          `json:"phase"`
	Track      string         `json:"track,omitempty"`
	Criteria   CutoffCriteria `json:"criteria"`
	Overrides  []Override     `json:"overrides,omitempty"`
	Decisions  []Decision     `json:"decisions"`
	Forced     bool           `json:"forced"`
	AppliedBy  string         `json:"appliedBy"`
	AppliedAt  time.Time      `json:"appliedAt"`
	Finalized  bool           `json:"finalized"`
	RevertedAt *time.Time     `json:"revertedAt,omitempty"`
}

// Counts returns how many decisions advance and reject.
func (r *CutoffRecord) Counts() (advanced, rejected int) {
	for _, d := range r.Decisions {
		if d.Action == ActionAdvance {
			advanced++
		} else {
			rejected++
		}
	}
	return advanced, rejected
}

func (r *CutoffRecord) clone() *CutoffRecord {
	out := *r
	out.Overrides = append([]Override(nil), r.Overrides...)
	out.Decisions = append([]Decision(nil), r.Decisions...)
	if r.RevertedAt != nil {
		t := *r.RevertedAt
		out.RevertedAt = &t
	}
	return &out
}
