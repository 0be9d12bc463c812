package kafka

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Ping dials the first broker to verify the cluster is reachable.
func Ping(ctx context.Context, brokers []string) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dialing kafka broker %s: %w", brokers[0], err)
	}
	return conn.Close()
}
