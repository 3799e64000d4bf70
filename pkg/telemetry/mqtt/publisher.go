package mqtt

import (
	"context"
	"encoding/json"

	"github.com/robotalks/ttsp.go/pkg/monitor"
)

// SnapshotTopic returns the topic of a register block.
func SnapshotTopic(device, block string) string {
	return device + "/regs/" + block
}

// Publisher implements monitor.Publisher.
// Snapshots are published as JSON, Data is base64 encoded.
type Publisher struct {
	Pubber Pubber
}

// NewPublisher creates a Publisher.
func NewPublisher(p Pubber) *Publisher {
	return &Publisher{Pubber: p}
}

// Publish implements monitor.Publisher.
func (p *Publisher) Publish(ctx context.Context, s *monitor.Snapshot) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	token := p.Pubber.Pub(SnapshotTopic(s.Device, s.Block), payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
