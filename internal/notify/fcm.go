// README: Firebase Cloud Messaging sink.
package notify

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// TokenResolver maps a user to their registered device tokens.
type TokenResolver interface {
	Tokens(ctx context.Context, userID types.ID) ([]string, error)
}

type FCMSink struct {
	client *messaging.Client
	tokens TokenResolver
}

func NewFCMSink(client *messaging.Client, tokens TokenResolver) *FCMSink {
	return &FCMSink{client: client, tokens: tokens}
}

// Send pushes to every device of the recipient. A user with no registered
// token is not an error; partial delivery failures are.
func (s *FCMSink) Send(ctx context.Context, n Notification) error {
	tokens, err := s.tokens.Tokens(ctx, n.Recipient)
	if err != nil {
		return fmt.Errorf("resolve tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	var failed int
	for _, token := range tokens {
		msg := &messaging.Message{
			Token:        token,
			Notification: &messaging.Notification{Title: n.Title, Body: n.Body},
			Data:         n.Payload,
		}
		if _, err := s.client.Send(ctx, msg); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("fcm delivery failed for %d of %d tokens", failed, len(tokens))
	}
	return nil
}
