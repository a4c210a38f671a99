package upstream

import (
	"context"
	"fmt"

	zmq "github.com/pebbe/zmq4"

	"github.com/bardlex/powminer/pkg/log"
)

// ZMQRotationHint subscribes to an optional ZMQ PUB socket the upstream
// network may expose to push a rotation signal the instant a challenge
// changes, shortening the gap the poller would otherwise wait out on its
// next tick. It is strictly an optimization: the poller remains the
// source of truth for what the live challenge actually is.
type ZMQRotationHint struct {
	socket   *zmq.Socket
	endpoint string
	logger   *log.Logger
}

// NewZMQRotationHint creates a rotation hint subscriber bound to endpoint.
// An empty endpoint means the hint channel is disabled.
func NewZMQRotationHint(endpoint string, logger *log.Logger) (*ZMQRotationHint, error) {
	socket, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ socket: %w", err)
	}

	if err := socket.SetSubscribe("rotation"); err != nil {
		return nil, fmt.Errorf("failed to subscribe to rotation topic: %w", err)
	}

	return &ZMQRotationHint{
		socket:   socket,
		endpoint: endpoint,
		logger:   logger,
	}, nil
}

// Connect connects to the ZMQ endpoint.
func (h *ZMQRotationHint) Connect() error {
	if err := h.socket.Connect(h.endpoint); err != nil {
		return fmt.Errorf("failed to connect to rotation hint endpoint %s: %w", h.endpoint, err)
	}
	h.logger.Info("connected to rotation hint endpoint", "endpoint", h.endpoint)
	return nil
}

// Listen polls for rotation hint messages and invokes handler with the
// new challenge_id embedded in each message, non-blocking.
func (h *ZMQRotationHint) Listen(ctx context.Context, handler func(challengeID string)) error {
	h.logger.Info("starting rotation hint listener")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("rotation hint listener stopping")
			return ctx.Err()
		default:
		}

		msg, err := h.socket.RecvMessageBytes(zmq.DONTWAIT)
		if err != nil {
			if err.Error() == "resource temporarily unavailable" {
				continue
			}
			h.logger.Error("failed to receive rotation hint", "error", err)
			continue
		}

		if len(msg) < 2 {
			h.logger.Warn("received malformed rotation hint", "parts", len(msg))
			continue
		}

		challengeID := string(msg[1])
		handler(challengeID)
	}
}

// Close closes the ZMQ socket.
func (h *ZMQRotationHint) Close() error {
	if h.socket != nil {
		return h.socket.Close()
	}
	return nil
}
