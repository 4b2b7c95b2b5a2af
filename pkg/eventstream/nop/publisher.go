// Package nop provides the publisher used when no brokers are configured.
package nop

import (
	"context"

	"github.com/nontawat9304/mali-chat/pkg/eventstream"
)

// Publisher drops every event.
type Publisher struct{}

var _ eventstream.Publisher = (*Publisher)(nil)

func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishTurn rejects nil events so callers see the same contract as with
// a real broker.
func (*Publisher) PublishTurn(_ context.Context, event *eventstream.TurnEvent) error {
	if event == nil {
		return eventstream.ErrNilTurnEvent
	}
	return nil
}

func (*Publisher) Close() error { return nil }
