// Package channel holds the delivery senders for each notification channel.
package channel

import (
	"context"
	"errors"
	"fmt"

	"sendtime_notifier/internal/domain/notification"

	"golang.org/x/time/rate"
)

// ErrNoAddress means the recipient has no address for the channel. It is a
// send failure and goes through the retry path like any other.
var ErrNoAddress = errors.New("recipient has no address for channel")

// Registry resolves the sender for a channel. Every registered sender
// shares one token bucket, so provider quotas hold across channels.
type Registry struct {
	senders map[notification.Channel]notification.Sender
	limiter *rate.Limiter
}

// NewRegistry creates a registry limited to ratePerSecond sends; zero or
// less disables limiting.
func NewRegistry(ratePerSecond float64) *Registry {
	r := &Registry{senders: map[notification.Channel]notification.Sender{}}
	if ratePerSecond > 0 {
		burst := int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}
	return r
}

// Register adds or replaces the sender for its channel.
func (r *Registry) Register(s notification.Sender) {
	r.senders[s.Channel()] = s
}

// For implements app.Senders.
func (r *Registry) For(ch notification.Channel) (notification.Sender, bool) {
	s, ok := r.senders[ch]
	if !ok {
		return nil, false
	}
	if r.limiter == nil {
		return s, true
	}
	return &limitedSender{Sender: s, limiter: r.limiter}, true
}

// Channels lists the registered channels.
func (r *Registry) Channels() []notification.Channel {
	out := make([]notification.Channel, 0, len(r.senders))
	for _, ch := range notification.Channels {
		if _, ok := r.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

type limitedSender struct {
	notification.Sender
	limiter *rate.Limiter
}

func (l *limitedSender) Send(ctx context.Context, e *notification.QueueEntry, to notification.Recipient) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return l.Sender.Send(ctx, e, to)
}
