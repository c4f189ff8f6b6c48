package notification

import (
	"errors"
	"fmt"

	"github.com/smukkama/fleet-analytics/internal/protocol"
)

// ErrMalformed marks a message that can never be delivered. Consumers
// should commit past it rather than retry.
var ErrMalformed = errors.New("malformed notification message")

// HandleMessage decodes one message from the anomaly topic and emails it
func (e *EmailNotifier) HandleMessage(data []byte) error {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch m := msg.(type) {
	case *protocol.AnomalyNotification:
		return e.SendAnomalyNotification(m)
	case *protocol.RollupCompleted:
		return e.SendRollupSummary(m)
	default:
		return fmt.Errorf("%w: unhandled message %T", ErrMalformed, msg)
	}
}
