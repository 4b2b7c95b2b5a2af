// Package eventstream publishes answered turns to an event stream backend.
package eventstream

import (
	"context"
	"errors"
)

// ErrNilTurnEvent is returned by publishers handed a nil event.
var ErrNilTurnEvent = errors.New("nil turn event")

// Publisher sends turn events to a broker. Implementations are safe for
// concurrent use by the worker pool.
type Publisher interface {
	PublishTurn(ctx context.Context, event *TurnEvent) error
	Close() error
}
