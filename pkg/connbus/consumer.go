package connbus

import "context"

type Message struct {
	Value []byte
}

// Consumer is the minimal bus surface the gateway reads connection
// lifecycle events from.
type Consumer interface {
	ReadMessage(ctx context.Context) (Message, error)
	Close() error
}
