package lifecycle

import (
	"context"

	"github.com/sudo-init-do/errandhub/internal/alerts"
	"github.com/sudo-init-do/errandhub/internal/events"
)

// EventData is the payload published for every lifecycle event.
type EventData struct {
	Kind    EventKind `json:"kind"`
	Request *Request  `json:"request"`
	Bid     *Bid      `json:"bid,omitempty"`
}

type emission struct {
	kind     EventKind
	request  *Request
	bid      *Bid
	text     string
	audience func(ctx context.Context) ([]int64, error)
}

func recipients(ids ...int64) func(context.Context) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if id != 0 {
			out = append(out, id)
		}
	}
	return func(context.Context) ([]int64, error) { return out, nil }
}

// emit publishes em and notifies its audience in the background. It runs
// only after the write committed; failures are logged and never reach the
// caller.
func (e *Engine) emit(ctx context.Context, em emission) {
	snapshot := *em.request
	var bid *Bid
	if em.bid != nil {
		b := *em.bid
		bid = &b
	}

	e.emitting.Add(1)
	go func() {
		defer e.emitting.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.emitTimeout)
		defer cancel()

		name := e.desc.EventName(em.kind)
		e.publisher.Publish(events.New(e.desc.Name, name, EventData{
			Kind:    em.kind,
			Request: &snapshot,
			Bid:     bid,
		}))

		to, err := em.audience(ctx)
		if err != nil {
			e.logger.Warn("resolve audience failed", "domain", e.desc.Name, "event", name, "request_id", snapshot.ID, "err", err)
			return
		}
		if len(to) == 0 {
			return
		}

		err = e.notifier.Notify(ctx, alerts.Notification{
			Event:     string(em.kind),
			Domain:    e.desc.Name,
			RequestID: snapshot.ID,
			ChatIDs:   to,
			Text:      em.text,
		})
		if err != nil {
			e.logger.Warn("notify failed", "domain", e.desc.Name, "event", name, "request_id", snapshot.ID, "err", err)
		}
	}()
}
