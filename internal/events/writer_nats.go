package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/nats-io/nats.go"
)

// NATSWriter publishes the json encoded event on the subject "<topic>.<type>".
type NATSWriter struct {
	nc *nats.Conn
}

func NewNATSWriter(url string, opts ...nats.Option) (*NATSWriter, error) {
	opts = append([]nats.Option{nats.Name("phase-orchestrator")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", url, err)
	}
	return &NATSWriter{nc: nc}, nil
}

func NewNATSWriterFromConn(nc *nats.Conn) *NATSWriter {
	return &NATSWriter{nc: nc}
}

func (n *NATSWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", e.ID(), err)
	}
	return n.nc.Publish(Subject(topic, e.Type()), data)
}

func (n *NATSWriter) Close(ctx context.Context) error {
	if err := n.nc.FlushWithContext(ctx); err != nil {
		n.nc.Close()
		return err
	}
	n.nc.Close()
	return nil
}

// Subject maps an event type onto the topic's subject space.
func Subject(topic, eventType string) string {
	return topic + "." + eventType[strings.LastIndex(eventType, ".")+1:]
}
