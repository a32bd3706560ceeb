// Package audit writes cutoff records to Elasticsearch so decisions can be
// searched after the fact. The document id is the cutoff id, so a revert
// overwrites the applied record with its reverted state.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	apperrors "recruitment-review/internal/common/errors"
	"recruitment-review/internal/common/logger"
	"recruitment-review/internal/review"
)

const (
	StatusApplied  = "applied"
	StatusReverted = "reverted"
)

var _ review.DecisionIndexer = (*Indexer)(nil)

// Document is the indexed shape of a cutoff record.
type Document struct {
	CutoffID   string                `json:"cutoffId"`
	CycleID    string                `json:"cycleId"`
	Phase      review.Phase          `json:"phase"`
	Track      string                `json:"track,omitempty"`
	Status     string                `json:"status"`
	Criteria   review.CutoffCriteria `json:"criteria"`
	Overrides  []review.Override     `json:"overrides"`
	Decisions  []review.Decision     `json:"decisions"`
	Advanced   int                   `json:"advanced"`
	Rejected   int                   `json:"rejected"`
	Forced     bool                  `json:"forced"`
	Finalized  bool                  `json:"finalized"`
	AppliedBy  string                `json:"appliedBy"`
	AppliedAt  time.Time             `json:"appliedAt"`
	RevertedAt *time.Time            `json:"revertedAt,omitempty"`
}

func NewDocument(rec *review.CutoffRecord) Document {
	advanced, rejected := rec.Counts()
	doc := Document{
		CutoffID:   rec.ID,
		CycleID:    rec.CycleID,
		Phase:      rec.Phase,
		Track:      rec.Track,
		Status:     StatusApplied,
		Criteria:   rec.Criteria,
		Overrides:  rec.Overrides,
		Decisions:  rec.Decisions,
		Advanced:   advanced,
		Rejected:   rejected,
		Forced:     rec.Forced,
		Finalized:  rec.Finalized,
		AppliedBy:  rec.AppliedBy,
		AppliedAt:  rec.AppliedAt,
		RevertedAt: rec.RevertedAt,
	}
	if rec.RevertedAt != nil {
		doc.Status = StatusReverted
	}
	if doc.Overrides == nil {
		doc.Overrides = []review.Override{}
	}
	if doc.Decisions == nil {
		doc.Decisions = []review.Decision{}
	}
	return doc
}

type Indexer struct {
	client  *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
}

func NewIndexer(client *elasticsearch.Client, index string, log logger.Logger) *Indexer {
	return &Indexer{
		client:  client,
		index:   index,
		timeout: 10 * time.Second,
		logger:  log.WithFields(map[string]interface{}{"component": "decision-indexer", "index": index}),
	}
}

func (i *Indexer) IndexCutoff(ctx context.Context, rec *review.CutoffRecord) error {
	body, err := json.Marshal(NewDocument(rec))
	if err != nil {
		return apperrors.NewSearchIndexError(i.index, err)
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	req := esapi.IndexRequest{
		Index:      i.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return apperrors.NewSearchIndexError(i.index, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return apperrors.NewSearchIndexError(i.index, fmt.Errorf("index request failed: %s", res.String()))
	}

	i.logger.Debug("cutoff record indexed", map[string]interface{}{"cutoffId": rec.ID, "status": res.StatusCode})
	return nil
}
