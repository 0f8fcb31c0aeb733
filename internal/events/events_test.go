package events

import (
	"encoding/json"
	"testing"
)

func TestNewMarshalsData(t *testing.T) {
	t.Parallel()

	evt := New("taxi", "trip_created", map[string]string{"id": "r-1"})
	if evt.Domain != "taxi" || evt.Name != "trip_created" {
		t.Errorf("got %s/%s, want taxi/trip_created", evt.Domain, evt.Name)
	}
	var got map[string]string
	if err := json.Unmarshal(evt.Data, &got); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if got["id"] != "r-1" {
		t.Errorf("id = %q, want %q", got["id"], "r-1")
	}
	if evt.At.IsZero() {
		t.Error("At is zero")
	}
}

func TestMultiPublishesToEach(t *testing.T) {
	t.Parallel()

	var a, b []string
	m := Multi{
		PublisherFunc(func(e Event) { a = append(a, e.Name) }),
		nil,
		PublisherFunc(func(e Event) { b = append(b, e.Name) }),
	}
	m.Publish(New("delivery", "delivery_order_updated", nil))

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("deliveries = %d/%d, want 1/1", len(a), len(b))
	}
}

func TestRoutingKey(t *testing.T) {
	t.Parallel()

	if got, want := RoutingKey(Event{Domain: "taxi", Name: "trip_assigned"}), "taxi.trip_assigned"; got != want {
		t.Errorf("RoutingKey() = %q, want %q", got, want)
	}
}
