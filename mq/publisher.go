package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"gameplace/models"

	"github.com/redis/go-redis/v9"
)

// ReservationChannel carries reservation lifecycle events.
const ReservationChannel = "reservation-events"

// Publisher emits reservation events on a Redis pub/sub channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client, channel: ReservationChannel}
}

// Send publishes ev. Subscribers that are not listening miss it.
func (p *Publisher) Send(ctx context.Context, ev models.ReservationEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Type, err)
	}
	log.Printf("[Emit] %s reservation=%s user=%s", ev.Type, ev.ReservationID, ev.UserID)
	return nil
}

// StartReservationWorker consumes the reservation channel and hands each event
// to handle until ctx is done.
func StartReservationWorker(ctx context.Context, client *redis.Client, handle func(models.ReservationEvent)) {
	sub := client.Subscribe(ctx, ReservationChannel)
	defer sub.Close()
	ch := sub.Channel()

	log.Println("[ReservationWorker] Listening for reservation events...")
	for {
		select {
		case <-ctx.Done():
			log.Println("[ReservationWorker] stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev models.ReservationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("[ReservationWorker] Failed to parse event: %v", err)
				continue
			}
			handle(ev)
		}
	}
}
