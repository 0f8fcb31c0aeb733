package lifecycle_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/sudo-init-do/errandhub/internal/alerts"
	"github.com/sudo-init-do/errandhub/internal/apperr"
	"github.com/sudo-init-do/errandhub/internal/eligibility"
	"github.com/sudo-init-do/errandhub/internal/events"
	"github.com/sudo-init-do/errandhub/internal/lifecycle"
	"github.com/sudo-init-do/errandhub/internal/store/memory"
	"github.com/sudo-init-do/errandhub/internal/user"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
	notes  []alerts.Notification
}

func (r *recorder) Publish(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) Notify(_ context.Context, n alerts.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Name)
	}
	return out
}

func (r *recorder) notesFor(event lifecycle.EventKind) []alerts.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []alerts.Notification
	for _, n := range r.notes {
		if n.Event == string(event) {
			out = append(out, n)
		}
	}
	return out
}

type harness struct {
	store  *memory.Store
	gate   *eligibility.Gate
	engine *lifecycle.Engine
	rec    *recorder
}

func newHarness(t *testing.T, desc lifecycle.Descriptor) *harness {
	t.Helper()
	s := memory.New()
	gate := eligibility.NewGate(desc.Name, desc.RequiresResource, s, testLogger())
	rec := &recorder{}
	eng := lifecycle.New(desc, s, gate,
		lifecycle.WithPublisher(rec),
		lifecycle.WithNotifier(rec),
		lifecycle.WithLogger(testLogger()),
	)
	return &harness{store: s, gate: gate, engine: eng, rec: rec}
}

func (h *harness) user(t *testing.T, extID int64) lifecycle.Party {
	t.Helper()
	u, err := h.store.EnsureUser(context.Background(), &user.User{ExternalID: extID, Name: "user"})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	return lifecycle.Party{UserID: u.ID, ExternalID: u.ExternalID}
}

// provider returns a fully eligible, active provider.
func (h *harness) provider(t *testing.T, extID int64) lifecycle.Party {
	t.Helper()
	ctx := context.Background()
	p := h.user(t, extID)
	if _, err := h.gate.SubmitProfile(ctx, p.UserID, eligibility.ProfileInput{FullName: "Sam Driver", Phone: "+7 700 000 00 00"}); err != nil {
		t.Fatalf("SubmitProfile: %v", err)
	}
	if h.gate.RequiresResource() {
		if _, err := h.gate.UpsertResource(ctx, p.UserID, eligibility.ResourceInput{Make: "Toyota", Plate: "a123bc"}); err != nil {
			t.Fatalf("UpsertResource: %v", err)
		}
	}
	if _, err := h.gate.ApproveAll(ctx, p.UserID); err != nil {
		t.Fatalf("ApproveAll: %v", err)
	}
	if _, err := h.gate.SetActive(ctx, p.UserID, true); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	return p
}

func price(v int64) *int64 { return &v }

func bidInput() lifecycle.CreateInput {
	return lifecycle.CreateInput{Origin: "Airport", Destination: "Old town", PriceMode: lifecycle.PriceBid}
}

func fixedInput(p int64) lifecycle.CreateInput {
	return lifecycle.CreateInput{Origin: "Airport", Destination: "Old town", PriceMode: lifecycle.PriceFixed, ClientPrice: price(p)}
}

func wantKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("err = %v, want %v", err, kind)
	}
}

func TestBiddingAcceptAssignsWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	x := h.provider(t, 201)
	y := h.provider(t, 202)

	r, err := h.engine.CreateRequest(ctx, req, bidInput())
	if err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
	if r.Status != lifecycle.StatusNew || r.ClientPrice != nil {
		t.Fatalf("created = %+v", r)
	}

	bx, err := h.engine.PlaceBid(ctx, x, r.ID, 500, "")
	if err != nil {
		t.Fatalf("PlaceBid x: %v", err)
	}
	by, err := h.engine.PlaceBid(ctx, y, r.ID, 600, "clean car")
	if err != nil {
		t.Fatalf("PlaceBid y: %v", err)
	}

	assigned, err := h.engine.AcceptBid(ctx, req, by.ID)
	if err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}
	if assigned.Status != lifecycle.StatusAssigned {
		t.Errorf("Status = %q, want %q", assigned.Status, lifecycle.StatusAssigned)
	}
	if assigned.FinalPrice == nil || *assigned.FinalPrice != 600 {
		t.Errorf("FinalPrice = %v, want 600", assigned.FinalPrice)
	}
	if assigned.Provider == nil || assigned.Provider.UserID != y.UserID {
		t.Errorf("Provider = %+v, want %s", assigned.Provider, y.UserID)
	}
	if assigned.ResourceID == nil {
		t.Error("ResourceID not recorded for taxi assignment")
	}

	gotX, _ := h.store.GetBid(ctx, "taxi", bx.ID)
	gotY, _ := h.store.GetBid(ctx, "taxi", by.ID)
	if gotX.Status != lifecycle.BidRejected {
		t.Errorf("x bid = %q, want %q", gotX.Status, lifecycle.BidRejected)
	}
	if gotY.Status != lifecycle.BidAccepted {
		t.Errorf("y bid = %q, want %q", gotY.Status, lifecycle.BidAccepted)
	}

	h.engine.Wait()
	names := h.rec.names()
	want := []string{"trip_created", "bid_created", "bid_created", "trip_assigned"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	counts := map[string]int{}
	for _, n := range names {
		counts[n]++
	}
	if counts["trip_created"] != 1 || counts["bid_created"] != 2 || counts["trip_assigned"] != 1 {
		t.Errorf("events = %v", names)
	}

	assignedNotes := h.rec.notesFor(lifecycle.EventRequestAssigned)
	if len(assignedNotes) != 1 || len(assignedNotes[0].ChatIDs) != 1 || assignedNotes[0].ChatIDs[0] != 202 {
		t.Errorf("assigned notification = %+v, want chat 202", assignedNotes)
	}
}

func TestRepeatedBidsKeepOnePending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	p := h.provider(t, 201)

	r, err := h.engine.CreateRequest(ctx, req, bidInput())
	if err != nil {
		t.Fatal(err)
	}
	var first *lifecycle.Bid
	for _, v := range []int64{700, 650, 610} {
		b, err := h.engine.PlaceBid(ctx, p, r.ID, v, "")
		if err != nil {
			t.Fatalf("PlaceBid(%d): %v", v, err)
		}
		if first == nil {
			first = b
		} else if b.ID != first.ID {
			t.Errorf("bid id changed: %s -> %s", first.ID, b.ID)
		}
	}

	bids, err := h.engine.ListBids(ctx, req, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(bids) != 1 {
		t.Fatalf("pending bids = %d, want 1", len(bids))
	}
	if bids[0].OfferedPrice != 610 {
		t.Errorf("OfferedPrice = %d, want 610", bids[0].OfferedPrice)
	}
}

func TestFixedClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	p := h.provider(t, 201)
	other := h.provider(t, 202)

	r, err := h.engine.CreateRequest(ctx, req, fixedInput(300))
	if err != nil {
		t.Fatal(err)
	}
	got, err := h.engine.ClaimFixed(ctx, p, r.ID)
	if err != nil {
		t.Fatalf("ClaimFixed: %v", err)
	}
	if got.Status != lifecycle.StatusAssigned || got.FinalPrice == nil || *got.FinalPrice != 300 {
		t.Errorf("claimed = status %s price %v, want ASSIGNED 300", got.Status, got.FinalPrice)
	}
	if got.Provider == nil || got.Provider.UserID != p.UserID {
		t.Errorf("Provider = %+v, want %s", got.Provider, p.UserID)
	}

	_, err = h.engine.ClaimFixed(ctx, other, r.ID)
	wantKind(t, err, apperr.ErrConflict)
}

func TestClaimRequiresFixedPrice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Delivery())

	req := h.user(t, 100)
	p := h.provider(t, 201)

	r, err := h.engine.CreateRequest(ctx, req, lifecycle.CreateInput{Title: "Groceries", Destination: "Home", PriceMode: lifecycle.PriceBid})
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.engine.ClaimFixed(ctx, p, r.ID)
	wantKind(t, err, apperr.ErrValidation)
}

func TestUnapprovedProviderCannotBid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	stranger := h.user(t, 300)

	r, err := h.engine.CreateRequest(ctx, req, bidInput())
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.engine.PlaceBid(ctx, stranger, r.ID, 500, "")
	wantKind(t, err, apperr.ErrPermission)
	if err.Error() != eligibility.ReasonNotApproved {
		t.Errorf("message = %q, want %q", err.Error(), eligibility.ReasonNotApproved)
	}

	bids, _ := h.store.ListBids(ctx, "taxi", r.ID, "")
	if len(bids) != 0 {
		t.Errorf("bids = %d, want 0", len(bids))
	}
}

func TestSecondActiveRequestConflicts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	if _, err := h.engine.CreateRequest(ctx, req, bidInput()); err != nil {
		t.Fatal(err)
	}
	_, err := h.engine.CreateRequest(ctx, req, fixedInput(400))
	wantKind(t, err, apperr.ErrConflict)

	list, _ := h.engine.ListForRequester(ctx, req, lifecycle.ScopeAll, 0)
	if len(list) != 1 {
		t.Errorf("requests = %d, want 1", len(list))
	}
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		desc lifecycle.Descriptor
		in   lifecycle.CreateInput
	}{
		{"taxi missing origin", lifecycle.Taxi(), lifecycle.CreateInput{Destination: "B", PriceMode: lifecycle.PriceBid}},
		{"delivery missing title", lifecycle.Delivery(), lifecycle.CreateInput{Destination: "B", PriceMode: lifecycle.PriceBid}},
		{"fixed without price", lifecycle.Taxi(), lifecycle.CreateInput{Origin: "A", Destination: "B", PriceMode: lifecycle.PriceFixed}},
		{"fixed zero price", lifecycle.Taxi(), lifecycle.CreateInput{Origin: "A", Destination: "B", PriceMode: lifecycle.PriceFixed, ClientPrice: price(0)}},
		{"unknown mode", lifecycle.Taxi(), lifecycle.CreateInput{Origin: "A", Destination: "B", PriceMode: "AUCTION"}},
		{"blank fields", lifecycle.Taxi(), lifecycle.CreateInput{Origin: "  ", Destination: "B", PriceMode: lifecycle.PriceBid}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.desc)
			_, err := h.engine.CreateRequest(ctx, h.user(t, 100), tt.in)
			wantKind(t, err, apperr.ErrValidation)
		})
	}
}

func TestBidModeIgnoresClientPrice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, lifecycle.Taxi())

	in := bidInput()
	in.ClientPrice = price(999)
	in.PriceMode = "bid"
	r, err := h.engine.CreateRequest(context.Background(), h.user(t, 100), in)
	if err != nil {
		t.Fatal(err)
	}
	if r.ClientPrice != nil {
		t.Errorf("ClientPrice = %d, want nil", *r.ClientPrice)
	}
}

func TestBidRules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	p := h.provider(t, 201)

	fixed, err := h.engine.CreateRequest(ctx, req, fixedInput(300))
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.engine.PlaceBid(ctx, p, fixed.ID, 250, "")
	wantKind(t, err, apperr.ErrValidation)

	_, err = h.engine.PlaceBid(ctx, p, "missing", 250, "")
	wantKind(t, err, apperr.ErrNotFound)

	if _, err := h.engine.Cancel(ctx, req, fixed.ID); err != nil {
		t.Fatal(err)
	}
	open, err := h.engine.CreateRequest(ctx, req, bidInput())
	if err != nil {
		t.Fatal(err)
	}
	_, err = h.engine.PlaceBid(ctx, p, open.ID, 0, "")
	wantKind(t, err, apperr.ErrValidation)

	b, err := h.engine.PlaceBid(ctx, p, open.ID, 500, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.AcceptBid(ctx, req, b.ID); err != nil {
		t.Fatal(err)
	}
	_, err = h.engine.PlaceBid(ctx, p, open.ID, 450, "")
	wantKind(t, err, apperr.ErrConflict)
}

func TestAcceptPermissions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	intruder := h.user(t, 101)
	p := h.provider(t, 201)

	r, _ := h.engine.CreateRequest(ctx, req, bidInput())
	b, err := h.engine.PlaceBid(ctx, p, r.ID, 500, "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.engine.AcceptBid(ctx, intruder, b.ID)
	wantKind(t, err, apperr.ErrPermission)
	_, err = h.engine.ListBids(ctx, intruder, r.ID)
	wantKind(t, err, apperr.ErrPermission)
	_, err = h.engine.AcceptBid(ctx, req, "missing")
	wantKind(t, err, apperr.ErrNotFound)
}

func TestConcurrentAcceptHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	r, err := h.engine.CreateRequest(ctx, req, bidInput())
	if err != nil {
		t.Fatal(err)
	}

	const n = 8
	bids := make([]*lifecycle.Bid, n)
	for i := 0; i < n; i++ {
		p := h.provider(t, int64(300+i))
		bids[i], err = h.engine.PlaceBid(ctx, p, r.ID, int64(400+i*10), "")
		if err != nil {
			t.Fatal(err)
		}
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.engine.AcceptBid(ctx, req, bids[i].ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, i)
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				t.Errorf("AcceptBid: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if len(winners) != 1 || conflicts != n-1 {
		t.Fatalf("winners = %d conflicts = %d, want 1 and %d", len(winners), conflicts, n-1)
	}
	got, _ := h.store.GetRequest(ctx, "taxi", r.ID)
	win := bids[winners[0]]
	if got.FinalPrice == nil || *got.FinalPrice != win.OfferedPrice {
		t.Errorf("FinalPrice = %v, want %d", got.FinalPrice, win.OfferedPrice)
	}
	all, _ := h.store.ListBids(ctx, "taxi", r.ID, "")
	for _, b := range all {
		want := lifecycle.BidRejected
		if b.ID == win.ID {
			want = lifecycle.BidAccepted
		}
		if b.Status != want {
			t.Errorf("bid %s = %q, want %q", b.ID, b.Status, want)
		}
	}
}

func TestConcurrentClaimHasOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Delivery())

	req := h.user(t, 100)
	r, err := h.engine.CreateRequest(ctx, req, lifecycle.CreateInput{
		Title: "Documents", Destination: "Office", PriceMode: lifecycle.PriceFixed, ClientPrice: price(1200),
	})
	if err != nil {
		t.Fatal(err)
	}

	const n = 10
	providers := make([]lifecycle.Party, n)
	for i := range providers {
		providers[i] = h.provider(t, int64(400+i))
	}

	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.engine.ClaimFixed(ctx, providers[i], r.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case !errors.Is(err, apperr.ErrConflict):
			t.Errorf("ClaimFixed: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}

func TestStatusProgression(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	p := h.provider(t, 201)
	r, _ := h.engine.CreateRequest(ctx, req, fixedInput(300))
	if _, err := h.engine.ClaimFixed(ctx, p, r.ID); err != nil {
		t.Fatal(err)
	}

	for _, next := range []lifecycle.Status{lifecycle.StatusOnWay, lifecycle.StatusInProgress, lifecycle.StatusCompleted} {
		got, err := h.engine.AdvanceStatus(ctx, p, r.ID, next)
		if err != nil {
			t.Fatalf("AdvanceStatus(%s): %v", next, err)
		}
		if got.Status != next {
			t.Errorf("Status = %q, want %q", got.Status, next)
		}
	}

	_, err := h.engine.Cancel(ctx, req, r.ID)
	wantKind(t, err, apperr.ErrConflict)
	_, err = h.engine.AdvanceStatus(ctx, p, r.ID, lifecycle.StatusInProgress)
	wantKind(t, err, apperr.ErrConflict)

	// the finished request no longer blocks a new one
	if _, err := h.engine.CreateRequest(ctx, req, bidInput()); err != nil {
		t.Errorf("CreateRequest after completion: %v", err)
	}
}

func TestIllegalTransitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	p := h.provider(t, 201)
	r, _ := h.engine.CreateRequest(ctx, req, fixedInput(300))
	if _, err := h.engine.ClaimFixed(ctx, p, r.ID); err != nil {
		t.Fatal(err)
	}

	_, err := h.engine.AdvanceStatus(ctx, p, r.ID, lifecycle.StatusCompleted)
	wantKind(t, err, apperr.ErrConflict)
	if want := "illegal transition ASSIGNED -> COMPLETED"; err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}

	_, err = h.engine.AdvanceStatus(ctx, p, r.ID, lifecycle.StatusNew)
	wantKind(t, err, apperr.ErrConflict)

	_, err = h.engine.AdvanceStatus(ctx, p, r.ID, "FLYING")
	wantKind(t, err, apperr.ErrValidation)

	_, err = h.engine.AdvanceStatus(ctx, req, r.ID, lifecycle.StatusOnWay)
	wantKind(t, err, apperr.ErrPermission)

	// taxi drivers cannot cancel
	_, err = h.engine.AdvanceStatus(ctx, p, r.ID, lifecycle.StatusCancelled)
	wantKind(t, err, apperr.ErrPermission)
}

func TestNewToCompletedIsIllegal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		desc lifecycle.Descriptor
		in   lifecycle.CreateInput
	}{
		{lifecycle.Taxi(), bidInput()},
		{lifecycle.Delivery(), lifecycle.CreateInput{Title: "Flowers", Destination: "B", PriceMode: lifecycle.PriceBid}},
	}
	for _, tt := range tests {
		desc := tt.desc
		h := newHarness(t, desc)
		req := h.user(t, 100)
		p := h.provider(t, 201)
		r, err := h.engine.CreateRequest(ctx, req, tt.in)
		if err != nil {
			t.Fatalf("%s: CreateRequest: %v", desc.Name, err)
		}

		for _, caller := range []lifecycle.Party{req, p} {
			_, err := h.engine.AdvanceStatus(ctx, caller, r.ID, lifecycle.StatusCompleted)
			wantKind(t, err, apperr.ErrConflict)
			if want := "illegal transition NEW -> COMPLETED"; err.Error() != want {
				t.Errorf("%s: message = %q, want %q", desc.Name, err.Error(), want)
			}
		}

		got, err := h.engine.Get(ctx, req, r.ID)
		if err != nil {
			t.Fatalf("%s: Get: %v", desc.Name, err)
		}
		if got.Status != lifecycle.StatusNew {
			t.Errorf("%s: Status = %q, want %q", desc.Name, got.Status, lifecycle.StatusNew)
		}
	}
}

func TestGetDoesNotCreateProfiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	stranger := h.user(t, 300)
	r, err := h.engine.CreateRequest(ctx, req, bidInput())
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.engine.Get(ctx, stranger, r.ID)
	wantKind(t, err, apperr.ErrNotFound)

	list, err := h.store.ListProfiles(ctx, "taxi", stranger.UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("profiles after Get = %d, want 0", len(list))
	}

	p := h.provider(t, 201)
	if _, err := h.engine.Get(ctx, p, r.ID); err != nil {
		t.Errorf("Get by eligible provider: %v", err)
	}
}

func TestCancelWindowPerVertical(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		desc    lifecycle.Descriptor
		in      lifecycle.CreateInput
		wantErr error
	}{
		{lifecycle.Taxi(), fixedInput(300), apperr.ErrConflict},
		{lifecycle.Delivery(), lifecycle.CreateInput{Title: "Flowers", Destination: "B", PriceMode: lifecycle.PriceFixed, ClientPrice: price(300)}, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.desc.Name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, tt.desc)
			req := h.user(t, 100)
			p := h.provider(t, 201)

			r, err := h.engine.CreateRequest(ctx, req, tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := h.engine.ClaimFixed(ctx, p, r.ID); err != nil {
				t.Fatal(err)
			}
			if _, err := h.engine.AdvanceStatus(ctx, p, r.ID, lifecycle.StatusInProgress); err != nil {
				t.Fatal(err)
			}

			got, err := h.engine.Cancel(ctx, req, r.ID)
			if tt.wantErr != nil {
				wantKind(t, err, tt.wantErr)
				return
			}
			if err != nil {
				t.Fatalf("Cancel: %v", err)
			}
			if got.Status != lifecycle.StatusCancelled {
				t.Errorf("Status = %q, want CANCELLED", got.Status)
			}
		})
	}
}

func TestCancelBeforeStartAndByStranger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	req := h.user(t, 100)
	stranger := h.user(t, 101)
	p := h.provider(t, 201)

	r, _ := h.engine.CreateRequest(ctx, req, bidInput())
	b, err := h.engine.PlaceBid(ctx, p, r.ID, 500, "")
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.engine.Cancel(ctx, stranger, r.ID)
	wantKind(t, err, apperr.ErrPermission)

	got, err := h.engine.Cancel(ctx, req, r.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != lifecycle.StatusCancelled {
		t.Errorf("Status = %q, want CANCELLED", got.Status)
	}
	stored, _ := h.store.GetBid(ctx, "taxi", b.ID)
	if stored.Status != lifecycle.BidRejected {
		t.Errorf("pending bid after cancel = %q, want REJECTED", stored.Status)
	}

	_, err = h.engine.Cancel(ctx, req, r.ID)
	wantKind(t, err, apperr.ErrConflict)
}

func TestDeliveryCourierMayCancel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Delivery())

	req := h.user(t, 100)
	p := h.provider(t, 201)
	r, _ := h.engine.CreateRequest(ctx, req, lifecycle.CreateInput{Title: "Cake", Destination: "B", PriceMode: lifecycle.PriceFixed, ClientPrice: price(700)})
	if _, err := h.engine.ClaimFixed(ctx, p, r.ID); err != nil {
		t.Fatal(err)
	}
	got, err := h.engine.AdvanceStatus(ctx, p, r.ID, lifecycle.StatusCancelled)
	if err != nil {
		t.Fatalf("AdvanceStatus(CANCELLED): %v", err)
	}
	if got.Status != lifecycle.StatusCancelled {
		t.Errorf("Status = %q, want CANCELLED", got.Status)
	}
}

func TestCreatedNotifiesActiveProvidersExceptAuthor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	// an active provider who also rides
	author := h.provider(t, 500)
	h.provider(t, 501)
	h.provider(t, 502)
	idle := h.provider(t, 503)
	if _, err := h.gate.SetActive(ctx, idle.UserID, false); err != nil {
		t.Fatal(err)
	}

	if _, err := h.engine.CreateRequest(ctx, author, bidInput()); err != nil {
		t.Fatal(err)
	}
	h.engine.Wait()

	notes := h.rec.notesFor(lifecycle.EventRequestCreated)
	if len(notes) != 1 {
		t.Fatalf("created notifications = %d, want 1", len(notes))
	}
	got := notes[0].ChatIDs
	if len(got) != 2 || got[0] != 501 || got[1] != 502 {
		t.Errorf("ChatIDs = %v, want [501 502]", got)
	}
}

func TestOpenFeed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	p := h.provider(t, 201)
	for i := 0; i < 3; i++ {
		if _, err := h.engine.CreateRequest(ctx, h.user(t, int64(100+i)), bidInput()); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := h.engine.CreateRequest(ctx, p, bidInput()); err != nil {
		t.Fatal(err)
	}

	feed, err := h.engine.OpenFeed(ctx, p, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 3 {
		t.Errorf("feed = %d, want 3 (own request excluded)", len(feed))
	}

	_, err = h.engine.OpenFeed(ctx, h.user(t, 999), 10)
	wantKind(t, err, apperr.ErrPermission)
}

func TestAssignedProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, lifecycle.Taxi())

	rider := h.user(t, 1)
	driver := h.provider(t, 2)
	r, err := h.engine.CreateRequest(ctx, rider, fixedInput(900))
	if err != nil {
		t.Fatal(err)
	}

	_, err = h.engine.AssignedProvider(ctx, rider, r.ID)
	wantKind(t, err, apperr.ErrNotFound)

	if _, err := h.engine.ClaimFixed(ctx, driver, r.ID); err != nil {
		t.Fatal(err)
	}
	got, err := h.engine.AssignedProvider(ctx, rider, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Provider == nil || got.Provider.UserID != driver.UserID {
		t.Errorf("provider = %+v, want %v", got.Provider, driver.UserID)
	}
	if got.ResourceID == nil {
		t.Error("resource id not recorded on claim")
	}

	_, err = h.engine.AssignedProvider(ctx, driver, r.ID)
	wantKind(t, err, apperr.ErrPermission)
}
