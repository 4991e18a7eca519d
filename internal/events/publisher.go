package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/hee-tis/credential-broker/internal/models"
)

// Publisher implements revocation.Publisher over an SNS FIFO topic (§4.9).
type Publisher struct {
	client   *sns.Client
	topicARN string
}

// NewPublisher builds a Publisher targeting the configured topic.
func NewPublisher(client *sns.Client, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

// PublishRevocation sends one FIFO message per revoked credential, grouped
// by credentialId so same-credential events stay ordered (§4.9).
func (p *Publisher) PublishRevocation(ctx context.Context, event models.RevocationEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal revocation event: %w", err)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:               aws.String(p.topicARN),
		Message:                aws.String(string(body)),
		MessageGroupId:         aws.String(event.CredentialID),
		MessageDeduplicationId: aws.String(fmt.Sprintf("%s:%d", event.CredentialID, event.IssuedAt.UnixNano())),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String("CREDENTIAL_REVOKED"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish revocation event: %w", err)
	}
	return nil
}
