package service

import (
	"context"
	"sync"
	"time"

	"github.com/elmchat/elm-chat/internal/domain"
	"github.com/elmchat/elm-chat/pkg/log"
	"github.com/elmchat/elm-chat/pkg/pubsub"
)

const (
	publishTimeout     = 2 * time.Second
	defaultEventBuffer = 256
)

// PublishingBroadcaster delivers broadcasts through a local Broadcaster and
// mirrors each one to a bus channel from a background goroutine, so a slow
// bus never holds up the room. Events that do not fit the queue are dropped.
type PublishingBroadcaster struct {
	local   Broadcaster
	bus     pubsub.Publisher
	channel string

	mu     sync.Mutex
	closed bool
	queue  chan *pubsub.Event
	done   chan struct{}
}

func NewPublishingBroadcaster(local Broadcaster, bus pubsub.Publisher, channel string, buffer int) *PublishingBroadcaster {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	p := &PublishingBroadcaster{
		local:   local,
		bus:     bus,
		channel: channel,
		queue:   make(chan *pubsub.Event, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *PublishingBroadcaster) Broadcast(b domain.Broadcast) error {
	if err := p.local.Broadcast(b); err != nil {
		return err
	}

	l := log.L()
	event, err := pubsub.NewEvent(b.EventName(), b)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldEvent, b.EventName()).Msg("failed to encode room event")
		return nil
	}
	if !p.enqueue(event) {
		l.Warn().Str(log.FieldEvent, b.EventName()).Msg("room event queue full, dropping event")
	}
	return nil
}

// enqueue reports false when the queue is full. After Close events are
// dropped silently.
func (p *PublishingBroadcaster) enqueue(e *pubsub.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return true
	}
	select {
	case p.queue <- e:
		return true
	default:
		return false
	}
}

func (p *PublishingBroadcaster) run() {
	defer close(p.done)

	l := log.L()
	for e := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.bus.Publish(ctx, p.channel, e); err != nil {
			l.Warn().Err(err).Str(log.FieldEvent, e.Type).Msg("failed to publish room event")
		}
		cancel()
	}
}

// Close publishes what is queued and stops the worker. It does not close
// the bus.
func (p *PublishingBroadcaster) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}
