// README: Notification worker and listener tests.
package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/modules/event"
	"github.com/oxymore-tech/liane-sub002/internal/modules/tracking"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/routing"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type chanSink struct {
	sent chan Notification
}

func (s *chanSink) Send(_ context.Context, n Notification) error {
	s.sent <- n
	return nil
}

func TestWorkerDelivers(t *testing.T) {
	sink := &chanSink{sent: make(chan Notification, 1)}
	worker := NewWorker(sink, 4, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	worker.Enqueue(Notification{Recipient: "u1", Title: "hello"})

	select {
	case n := <-sink.sent:
		if n.Recipient != "u1" || n.Title != "hello" {
			t.Fatalf("delivered %+v", n)
		}
	case <-time.After(time.Second):
		t.Fatal("notification never delivered")
	}
}

// Enqueue must never block the dispatching goroutine, even with no worker
// draining the queue.
func TestEnqueueDropsWhenFull(t *testing.T) {
	worker := NewWorker(&chanSink{sent: make(chan Notification)}, 1, 0, discardLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Enqueue(Notification{Recipient: "u1"})
		worker.Enqueue(Notification{Recipient: "u2"}) // queue full, dropped
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestTokenRegistryRoundTrip(t *testing.T) {
	reg := NewMemoryTokenRegistry()
	ctx := context.Background()

	for _, token := range []string{"tok-1", "tok-2", "tok-1"} {
		if err := reg.Register(ctx, "alice", token); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	tokens, err := reg.Tokens(ctx, "alice")
	if err != nil || len(tokens) != 2 {
		t.Fatalf("tokens = %v (%v), want the two distinct tokens", tokens, err)
	}

	if err := reg.Unregister(ctx, "alice", "tok-1"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	tokens, _ = reg.Tokens(ctx, "alice")
	if len(tokens) != 1 || tokens[0] != "tok-2" {
		t.Fatalf("tokens after unregister = %v", tokens)
	}

	// a user with no devices resolves to an empty set, which the sink
	// treats as nothing to deliver
	sink := NewFCMSink(nil, reg)
	if err := sink.Send(ctx, Notification{Recipient: "bob"}); err != nil {
		t.Fatalf("send with no tokens: %v", err)
	}
}

func TestListenerNotifiesDriverOnJoinRequest(t *testing.T) {
	logger := discardLogger()
	trips := trip.NewService(trip.NewMemoryStore(), routing.NewFixedSpeedProvider(0), trip.DefaultConfig(), logger)
	ctx := context.Background()

	from := trip.RallyingPoint{ID: "a", Location: types.Point{Lat: 0, Lng: 0}}
	to := trip.RallyingPoint{ID: "c", Location: types.Point{Lat: 0, Lng: 0.2}}
	tr, err := trips.Create(ctx, trip.CreateCommand{
		CreatedBy: "driver", From: from, To: to,
		DepartureTime: time.Now().Add(time.Hour), SeatCount: 3, CanDrive: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	sink := &chanSink{sent: make(chan Notification, 4)}
	worker := NewWorker(sink, 4, 0, discardLogger())
	var wg sync.WaitGroup
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(wctx)
	}()

	listener := NewListener(worker, trips, nil)
	err = listener.OnEvent(ctx, event.JoinRequested{
		RequestID: "r1", Trip: tr.ID, Requester: "alice", SeatCount: 1, Message: "pick me up?",
	})
	if err != nil {
		t.Fatalf("on event: %v", err)
	}

	select {
	case n := <-sink.sent:
		if n.Recipient != "driver" {
			t.Fatalf("recipient = %s, want driver", n.Recipient)
		}
		if n.Body != "pick me up?" {
			t.Fatalf("body = %q", n.Body)
		}
		if n.Payload["request"] != "r1" {
			t.Fatalf("payload = %v", n.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("driver never notified")
	}
	cancel()
	wg.Wait()
}

// A ping from the driver pushes the refreshed snapshot to the other members,
// never back to the one who pinged.
func TestListenerBroadcastsSnapshotOnPing(t *testing.T) {
	logger := discardLogger()
	trips := trip.NewService(trip.NewMemoryStore(), routing.NewFixedSpeedProvider(0), trip.DefaultConfig(), logger)
	ctx := context.Background()

	from := trip.RallyingPoint{ID: "a", Location: types.Point{Lat: 0, Lng: 0}}
	to := trip.RallyingPoint{ID: "c", Location: types.Point{Lat: 0, Lng: 0.2}}
	tr, err := trips.Create(ctx, trip.CreateCommand{
		CreatedBy: "driver", From: from, To: to,
		DepartureTime: time.Now().Add(-time.Minute), SeatCount: 3, CanDrive: true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	err = trips.AddMember(ctx, tr.ID, trip.Member{UserID: "bob", From: "a", To: "c", SeatCount: -1}, nil)
	if err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := trips.Start(ctx, tr.ID, "driver"); err != nil {
		t.Fatalf("start: %v", err)
	}

	estimator := tracking.NewEstimator(trips, tracking.NewMemoryStore(), tracking.DefaultConfig(), logger)
	if _, err := estimator.PushPing(ctx, tr.ID, tracking.Ping{UserID: "driver", Coordinate: &from.Location}); err != nil {
		t.Fatalf("ping: %v", err)
	}

	sink := &chanSink{sent: make(chan Notification, 4)}
	worker := NewWorker(sink, 4, 0, logger)
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go worker.Run(wctx)

	listener := NewListener(worker, trips, estimator)
	if err := listener.OnEvent(ctx, event.MemberPing{Trip: tr.ID, UserID: "driver"}); err != nil {
		t.Fatalf("on event: %v", err)
	}

	select {
	case n := <-sink.sent:
		if n.Recipient != "bob" {
			t.Fatalf("recipient = %s, want bob", n.Recipient)
		}
		if n.Payload["kind"] != "tracking" || n.Payload["snapshot"] == "" {
			t.Fatalf("payload = %v", n.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("snapshot never broadcast")
	}
	select {
	case n := <-sink.sent:
		t.Fatalf("unexpected second push to %s", n.Recipient)
	case <-time.After(50 * time.Millisecond):
	}
}
