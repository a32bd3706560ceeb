package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruitment-review/internal/common/camunda"
	"recruitment-review/internal/review"
)

// DefaultMessageName is the BPMN message the decision notification process
// starts on.
const DefaultMessageName = "applicant-decision"

// MessagePublisher is implemented by camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg camunda.Message) error
}

// DecisionMessage is the variable payload of one decision message.
type DecisionMessage struct {
	CutoffID       string              `json:"cutoffId"`
	CycleID        string              `json:"cycleId"`
	Phase          review.Phase        `json:"phase"`
	ApplicationID  string              `json:"applicationId"`
	ApplicantName  string              `json:"applicantName"`
	ApplicantEmail string              `json:"applicantEmail"`
	Action         review.CutoffAction `json:"action"`
	ToStage        review.Stage        `json:"toStage"`
	Finalized      bool                `json:"finalized"`
}

// ZeebeDispatcher publishes one message per decision, correlated by
// application id. A failed publish does not stop the remaining decisions.
type ZeebeDispatcher struct {
	publisher   MessagePublisher
	messageName string
	ttl         time.Duration
}

func NewZeebeDispatcher(publisher MessagePublisher, messageName string, ttl time.Duration) *ZeebeDispatcher {
	if messageName == "" {
		messageName = DefaultMessageName
	}
	return &ZeebeDispatcher{publisher: publisher, messageName: messageName, ttl: ttl}
}

func (z *ZeebeDispatcher) Name() string { return "zeebe" }

func (z *ZeebeDispatcher) Dispatch(ctx context.Context, event review.DecisionEvent) error {
	var errs []error
	for _, d := range event.Decisions {
		msg := camunda.Message{
			Name:           z.messageName,
			CorrelationKey: d.ApplicationID,
			MessageID:      event.CutoffID + ":" + d.ApplicationID,
			TimeToLive:     z.ttl,
			Variables: DecisionMessage{
				CutoffID:       event.CutoffID,
				CycleID:        event.CycleID,
				Phase:          event.Phase,
				ApplicationID:  d.ApplicationID,
				ApplicantName:  d.ApplicantName,
				ApplicantEmail: d.ApplicantEmail,
				Action:         d.Action,
				ToStage:        d.ToStage,
				Finalized:      event.Finalized,
			},
		}
		if err := z.publisher.PublishMessage(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish decision for %s: %w", d.ApplicationID, err))
		}
	}
	return errors.Join(errs...)
}
