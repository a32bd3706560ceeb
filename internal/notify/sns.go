package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"recruitment-review/internal/review"
)

const EventPhaseDecided = "phase.decided"

// SNSPublisher is implemented by the SNS client.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// PhaseDecidedEvent summarises a cutoff for subscribers that do not need the
// individual decisions.
type PhaseDecidedEvent struct {
	Type      string       `json:"type"`
	CutoffID  string       `json:"cutoffId"`
	CycleID   string       `json:"cycleId"`
	Phase     review.Phase `json:"phase"`
	Finalized bool         `json:"finalized"`
	Advanced  []string     `json:"advanced"`
	Rejected  []string     `json:"rejected"`
}

// SNSDispatcher publishes one PhaseDecidedEvent per cutoff to a topic.
type SNSDispatcher struct {
	client   SNSPublisher
	topicARN string
}

func NewSNSDispatcher(client SNSPublisher, topicARN string) *SNSDispatcher {
	return &SNSDispatcher{client: client, topicARN: topicARN}
}

func (s *SNSDispatcher) Name() string { return "sns" }

func (s *SNSDispatcher) Dispatch(ctx context.Context, event review.DecisionEvent) error {
	payload := PhaseDecidedEvent{
		Type:      EventPhaseDecided,
		CutoffID:  event.CutoffID,
		CycleID:   event.CycleID,
		Phase:     event.Phase,
		Finalized: event.Finalized,
		Advanced:  []string{},
		Rejected:  []string{},
	}
	for _, d := range event.Decisions {
		if d.Action == review.ActionAdvance {
			payload.Advanced = append(payload.Advanced, d.ApplicationID)
		} else {
			payload.Rejected = append(payload.Rejected, d.ApplicationID)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode phase event: %w", err)
	}

	_, err = s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(fmt.Sprintf("%s decided: %s", event.Phase, event.CycleID)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {DataType: aws.String("String"), StringValue: aws.String(EventPhaseDecided)},
			"phase":     {DataType: aws.String("String"), StringValue: aws.String(string(event.Phase))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish phase event: %w", err)
	}
	return nil
}
