package realtime

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/errandhub/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func receive(t *testing.T, sub *Subscriber) events.Event {
	t.Helper()
	select {
	case evt := <-sub.C():
		return evt
	case <-time.After(time.Second):
		t.Fatalf("subscriber %s timed out", sub.ID())
	}
	return events.Event{}
}

func TestBrokerFanOut(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	subs := []*Subscriber{b.Subscribe("taxi"), b.Subscribe("taxi"), b.Subscribe("")}

	b.Publish(events.New("taxi", "trip_created", map[string]string{"id": "r-1"}))

	for _, sub := range subs {
		if got := receive(t, sub); got.Name != "trip_created" {
			t.Errorf("Name = %q, want %q", got.Name, "trip_created")
		}
	}
	if st := b.Stats(); st.TotalPublished != 3 {
		t.Errorf("TotalPublished = %d, want 3", st.TotalPublished)
	}
}

func TestBrokerDomainFilter(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	taxi := b.Subscribe("taxi")
	delivery := b.Subscribe("delivery")

	b.Publish(events.New("delivery", "delivery_order_created", nil))

	if got := receive(t, delivery); got.Domain != "delivery" {
		t.Errorf("Domain = %q, want delivery", got.Domain)
	}
	select {
	case evt := <-taxi.C():
		t.Errorf("taxi subscriber got %q", evt.Name)
	default:
	}
}

func TestBrokerDropsOnlyForSlowSubscriber(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger(), WithBufferSize(1))
	slow := b.Subscribe("")
	fast := b.Subscribe("")

	b.Publish(events.New("taxi", "first", nil))
	receive(t, fast)
	b.Publish(events.New("taxi", "second", nil))

	if got := receive(t, fast); got.Name != "second" {
		t.Errorf("fast got %q, want second", got.Name)
	}
	if got := receive(t, slow); got.Name != "first" {
		t.Errorf("slow got %q, want first", got.Name)
	}
	if st := b.Stats(); st.TotalDropped != 1 {
		t.Errorf("TotalDropped = %d, want 1", st.TotalDropped)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	sub := b.Subscribe("taxi")
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)

	if _, ok := <-sub.C(); ok {
		t.Error("channel still open after Unsubscribe")
	}
	if st := b.Stats(); st.SubscriberCount != 0 {
		t.Errorf("SubscriberCount = %d, want 0", st.SubscriberCount)
	}
	b.Publish(events.New("taxi", "after", nil))
}

func TestWriteSSE(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	evt := events.Event{Name: "trip_updated", Data: json.RawMessage(`{"status":"ON_WAY"}`)}
	if err := WriteSSE(&buf, evt); err != nil {
		t.Fatal(err)
	}
	want := "event: trip_updated\ndata: {\"status\":\"ON_WAY\"}\n\n"
	if buf.String() != want {
		t.Errorf("frame = %q, want %q", buf.String(), want)
	}
}

func newStreamServer(b *Broker) *httptest.Server {
	e := echo.New()
	withUser := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", "u-1")
			return next(c)
		}
	}
	e.GET("/stream", SSEHandler(b, "taxi"), withUser)
	e.GET("/ws", WSHandler(b, "taxi"), withUser)
	e.GET("/anon", SSEHandler(b, "taxi"))
	return httptest.NewServer(e)
}

func waitSubscribers(t *testing.T, b *Broker, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for b.Stats().SubscriberCount < n {
		if time.Now().After(deadline) {
			t.Fatalf("subscribers = %d, want %d", b.Stats().SubscriberCount, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSSEHandlerStreamsEvents(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	srv := newStreamServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()

	if ct := res.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(res.Body)
	line, err := r.ReadString('\n')
	if err != nil || line != ": ok\n" {
		t.Fatalf("first line = %q, %v", line, err)
	}
	_, _ = r.ReadString('\n')

	b.Publish(events.New("taxi", "trip_created", map[string]string{"id": "r-9"}))

	eventLine, _ := r.ReadString('\n')
	dataLine, _ := r.ReadString('\n')
	if eventLine != "event: trip_created\n" {
		t.Errorf("event line = %q", eventLine)
	}
	if dataLine != "data: {\"id\":\"r-9\"}\n" {
		t.Errorf("data line = %q", dataLine)
	}
}

func TestSSEHandlerRequiresUser(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	srv := newStreamServer(b)
	defer srv.Close()

	res, err := http.Get(srv.URL + "/anon")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", res.StatusCode)
	}
}

func TestWSHandlerPushesEvents(t *testing.T) {
	t.Parallel()

	b := NewBroker(testLogger())
	srv := newStreamServer(b)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitSubscribers(t, b, 1)
	b.Publish(events.New("taxi", "trip_assigned", map[string]int{"final_price": 600}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got wsEvent
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "trip_assigned" {
		t.Errorf("Type = %q, want trip_assigned", got.Type)
	}
	if string(got.Data) != `{"final_price":600}` {
		t.Errorf("Data = %s", got.Data)
	}
}
