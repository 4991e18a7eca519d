package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/hee-tis/credential-broker/internal/logger"
	"github.com/hee-tis/credential-broker/internal/models"
)

// Revoker is the subset of C7 the listener drives.
type Revoker interface {
	Revoke(ctx context.Context, tisID string, credentialType models.CredentialType, modifiedHashOrTimestamp *string) error
}

// ListenerConfig names the four queues §6 defines.
type ListenerConfig struct {
	DeletePlacementQueueURL           string
	DeleteProgrammeMembershipQueueURL string
	UpdatePlacementQueueURL           string
	UpdateProgrammeMembershipQueueURL string
}

type queueSource struct {
	url            string
	credentialType models.CredentialType
	isUpdate       bool
}

// Listener consumes the four delete/update queues, one poll loop each, and
// calls into the revocation service (§4.8). Each message is processed
// independently; a failed one is left on the queue for redelivery rather
// than deleted.
type Listener struct {
	client  *sqs.Client
	revoker Revoker
	sources []queueSource
}

// NewListener builds a Listener over the four queues named in cfg.
func NewListener(client *sqs.Client, revoker Revoker, cfg ListenerConfig) *Listener {
	return &Listener{
		client:  client,
		revoker: revoker,
		sources: []queueSource{
			{url: cfg.DeletePlacementQueueURL, credentialType: models.CredentialTypePlacement, isUpdate: false},
			{url: cfg.DeleteProgrammeMembershipQueueURL, credentialType: models.CredentialTypeProgrammeMembership, isUpdate: false},
			{url: cfg.UpdatePlacementQueueURL, credentialType: models.CredentialTypePlacement, isUpdate: true},
			{url: cfg.UpdateProgrammeMembershipQueueURL, credentialType: models.CredentialTypeProgrammeMembership, isUpdate: true},
		},
	}
}

// Start launches one independent poll loop per queue and blocks until ctx is
// cancelled (§5: "Event-queue consumers run as a separate worker pool").
func (l *Listener) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, source := range l.sources {
		wg.Add(1)
		go func(source queueSource) {
			defer wg.Done()
			l.poll(ctx, source)
		}(source)
	}
	wg.Wait()
}

func (l *Listener) poll(ctx context.Context, source queueSource) {
	logger.Events().Info().Str("queue", source.url).Msg("listening")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		out, err := l.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &source.url,
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Events().Warn().Err(err).Str("queue", source.url).Msg("receive message failed")
			continue
		}

		for _, msg := range out.Messages {
			l.handle(ctx, source, msg)
		}
	}
}

// handle processes one message and deletes it only on success. A processing
// failure — including RevocationPending from an exhausted gateway retry —
// leaves the message in place for the queue to redeliver (§7).
func (l *Listener) handle(ctx context.Context, source queueSource, msg sqstypes.Message) {
	if err := l.process(ctx, source, msg); err != nil {
		logger.Events().Warn().Err(err).Str("queue", source.url).Msg("event processing failed, leaving message for redelivery")
		return
	}

	if _, err := l.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &source.url,
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		logger.Events().Error().Err(err).Str("queue", source.url).Msg("failed to delete processed message")
	}
}

func (l *Listener) process(ctx context.Context, source queueSource, msg sqstypes.Message) error {
	if msg.Body == nil {
		return fmt.Errorf("empty message body")
	}

	if !source.isUpdate {
		var event DeleteEvent
		if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
			return fmt.Errorf("unmarshal delete event: %w", err)
		}
		return l.revoker.Revoke(ctx, event.TisID, source.credentialType, nil)
	}

	var event UpdateEvent
	if err := json.Unmarshal([]byte(*msg.Body), &event); err != nil {
		return fmt.Errorf("unmarshal update event: %w", err)
	}
	hash := contentFingerprint(salientFieldOrder(source.credentialType), event.Data)
	return l.revoker.Revoke(ctx, event.TisID, source.credentialType, &hash)
}
