package kafka

import (
	"context"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler processes one message. A nil return commits the offset; anything
// else leaves it uncommitted so the group redelivers after a rebalance.
type Handler func(ctx context.Context, m kafka.Message) error

// Consumer fans one topic out to a fixed pool of workers. Offsets are
// committed per message, only after the handler succeeds, so notification
// handlers must tolerate redelivery (they dedup on event id anyway).
type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			GroupID:        group,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // commit explicitly, after handling
		}),
		workers: workers,
	}
}

// Start reads until ctx is cancelled or the reader fails. It returns nil on
// cancellation and the read error otherwise.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	for i := 0; i < c.workers; i++ {
		go c.work(ctx, i, jobs, h)
	}

	for {
		m, err := c.r.ReadMessage(ctx)
		if err != nil {
			close(jobs)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			close(jobs)
			return nil
		}
	}
}

func (c *Consumer) work(ctx context.Context, id int, jobs <-chan kafka.Message, h Handler) {
	for m := range jobs {
		if err := h(ctx, m); err != nil {
			log.Printf("consumer worker=%d topic=%s offset=%d: %v", id, m.Topic, m.Offset, err)
			// Offset stays uncommitted; back off before the next job so a
			// hard failure does not spin the pool.
			time.Sleep(200 * time.Millisecond)
			continue
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			log.Printf("consumer worker=%d commit topic=%s offset=%d: %v", id, m.Topic, m.Offset, err)
		}
	}
}
