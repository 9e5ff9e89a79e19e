package game

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loqalabs/loqa-mathgame/internal/bus"
	"github.com/loqalabs/loqa-mathgame/internal/protocol"
)

// BusPublisher broadcasts views on game.view for display nodes.
type BusPublisher struct {
	bus *bus.Client
}

func NewBusPublisher(busClient *bus.Client) *BusPublisher {
	return &BusPublisher{bus: busClient}
}

func (p *BusPublisher) PublishView(_ context.Context, view View) error {
	data, err := json.Marshal(toGameView(view))
	if err != nil {
		return err
	}
	return p.bus.Conn().Publish(protocol.SubjectGameView, data)
}

func toGameView(v View) protocol.GameView {
	return protocol.GameView{
		SessionID: v.SessionID,
		State:     v.State,
		Problem:   v.Problem,
		Status:    v.Status,
		Result:    v.Result,
		Success:   v.Success,
		Score:     v.Score,
		Listening: v.Listening,
		Timestamp: time.Now().UTC(),
	}
}

// PublisherFunc adapts a function to ViewPublisher.
type PublisherFunc func(ctx context.Context, view View) error

func (f PublisherFunc) PublishView(ctx context.Context, view View) error { return f(ctx, view) }

// Publishers fans a view out to several publishers, stopping at the first error.
type Publishers []ViewPublisher

func (ps Publishers) PublishView(ctx context.Context, view View) error {
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.PublishView(ctx, view); err != nil {
			return err
		}
	}
	return nil
}
