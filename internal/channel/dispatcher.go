// Package channel holds the delivery adapters behind the queue's channels.
package channel

import (
	"context"
	"fmt"

	appErr "github.com/samims/tradenotify/internal/errors"
	"github.com/samims/tradenotify/internal/model"
)

// Adapter delivers a queue entry over one channel. Errors wrapped with appErr.Permanent are not retried.
type Adapter interface {
	Deliver(ctx context.Context, n *model.QueueEntry) error
}

// Dispatcher routes a queue entry to the adapter registered for its channel.
type Dispatcher struct {
	adapters map[model.Channel]Adapter
}

func NewDispatcher(adapters map[model.Channel]Adapter) *Dispatcher {
	return &Dispatcher{adapters: adapters}
}

func (d *Dispatcher) Deliver(ctx context.Context, n *model.QueueEntry) error {
	a, ok := d.adapters[n.Channel]
	if !ok {
		return appErr.Permanent(fmt.Errorf("no adapter for channel %q", n.Channel))
	}
	return a.Deliver(ctx, n)
}
