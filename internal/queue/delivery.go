package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrAlreadySettled is returned when a delivery is settled a second time.
	ErrAlreadySettled = errors.New("delivery already settled")
	// ErrLeaseLost is returned when the lease expired and the message was
	// handed to another consumer; the settle had no effect.
	ErrLeaseLost = errors.New("delivery lease lost")
)

// Delivery is one leased message. Exactly one of Ack, Nack or DeadLetter takes
// effect; later calls return ErrAlreadySettled without touching Redis.
// Settling after the lease was reclaimed returns ErrLeaseLost and leaves the
// current holder's lease intact.
type Delivery struct {
	// Tag is private to the broker and is not part of the message body.
	Tag     string
	Queue   string
	Body    []byte
	Attempt int

	lease   string
	queue   *RedisQueue
	settled atomic.Bool
}

// Settled reports whether the delivery has been acked, nacked or dead-lettered.
func (d *Delivery) Settled() bool { return d.settled.Load() }

func (d *Delivery) claim() error {
	if !d.settled.CompareAndSwap(false, true) {
		return ErrAlreadySettled
	}
	return nil
}

// Ack removes the message permanently.
func (d *Delivery) Ack(ctx context.Context) error {
	if err := d.claim(); err != nil {
		return err
	}
	return d.queue.ack(ctx, keysFor(d.Queue), d)
}

// Nack releases the lease and makes the message visible again after delay.
func (d *Delivery) Nack(ctx context.Context, delay time.Duration) error {
	if err := d.claim(); err != nil {
		return err
	}
	return d.queue.nack(ctx, keysFor(d.Queue), d, delay)
}

// DeadLetter moves the message body to the queue's dead-letter list.
func (d *Delivery) DeadLetter(ctx context.Context, reason string) error {
	if err := d.claim(); err != nil {
		return err
	}
	return d.queue.deadLetter(ctx, keysFor(d.Queue), d, reason)
}

// DeadLetter is a message that exhausted its attempts.
type DeadLetter struct {
	Body     string    `json:"body"`
	Reason   string    `json:"reason"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

func encodeDeadLetter(d *Delivery, reason string, at time.Time) (string, error) {
	raw, err := json.Marshal(DeadLetter{
		Body:     string(d.Body),
		Reason:   reason,
		Attempts: d.Attempt,
		FailedAt: at.UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("encode dead letter: %w", err)
	}
	return string(raw), nil
}

func decodeDeadLetter(raw string) (DeadLetter, error) {
	var dl DeadLetter
	if err := json.Unmarshal([]byte(raw), &dl); err != nil {
		return DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	return dl, nil
}
