// README: Translates trip events into user notifications.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/modules/event"
	"github.com/oxymore-tech/liane-sub002/internal/modules/tracking"
	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// SnapshotSource provides the tracking view broadcast after each ping.
// *tracking.Estimator implements it.
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, tripID types.ID) (*tracking.Snapshot, error)
}

// Listener turns bus events into enqueued notifications. It is meant to be
// registered behind event.BestEffort: a push that cannot be built must never
// block the workflow that triggered it.
type Listener struct {
	worker    *Worker
	trips     *trip.Service
	snapshots SnapshotSource
}

func NewListener(worker *Worker, trips *trip.Service, snapshots SnapshotSource) *Listener {
	return &Listener{worker: worker, trips: trips, snapshots: snapshots}
}

func (l *Listener) OnEvent(ctx context.Context, e event.Event) error {
	switch e := e.(type) {
	case event.JoinRequested:
		t, err := l.trips.Get(ctx, e.Trip)
		if err != nil {
			return err
		}
		body := fmt.Sprintf("%d seat(s) requested", e.SeatCount)
		if e.Message != "" {
			body = e.Message
		}
		l.worker.Enqueue(Notification{
			Recipient: t.Driver.UserID,
			Title:     "New join request",
			Body:      body,
			Payload:   payload(e.Trip, "join_requested", map[string]string{"request": string(e.RequestID)}),
		})
	case event.MemberAccepted:
		l.worker.Enqueue(Notification{
			Recipient: e.UserID,
			Title:     "Request accepted",
			Body:      "You are on the trip.",
			Payload:   payload(e.Trip, "member_accepted", nil),
		})
	case event.MemberRejected:
		l.worker.Enqueue(Notification{
			Recipient: e.UserID,
			Title:     "Request declined",
			Body:      reasonText(e.Reason),
			Payload:   payload(e.Trip, "member_rejected", map[string]string{"reason": e.Reason}),
		})
	case event.MemberPing:
		return l.broadcastSnapshot(ctx, e.Trip, e.UserID)
	case event.MemberHasStarted:
		l.fanOut(ctx, e.Trip, e.UserID, "Trip started", "Your driver is on the way.")
	case event.MemberHasCanceled:
		t, err := l.trips.Get(ctx, e.Trip)
		if err != nil {
			return err
		}
		if t.State == trip.StateCanceled {
			l.fanOut(ctx, e.Trip, e.UserID, "Trip canceled", "This trip will not take place.")
		}
	}
	return nil
}

// broadcastSnapshot sends the refreshed tracking view to every member except
// the one who pinged, as a data-only push. The snapshot already has hidden
// coordinates withheld; an offline member just misses the push and polls the
// snapshot endpoint instead.
func (l *Listener) broadcastSnapshot(ctx context.Context, tripID, pinger types.ID) error {
	if l.snapshots == nil {
		return nil
	}
	snap, err := l.snapshots.GetSnapshot(ctx, tripID)
	if err != nil {
		return err
	}
	t, err := l.trips.Get(ctx, tripID)
	if err != nil {
		return err
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	data := payload(tripID, "tracking", map[string]string{
		"delay_seconds": strconv.FormatInt(int64(snap.Delay/time.Second), 10),
		"snapshot":      string(doc),
	})
	for _, m := range t.Members {
		if m.UserID == pinger {
			continue
		}
		l.worker.Enqueue(Notification{Recipient: m.UserID, Payload: data})
	}
	return nil
}

// fanOut notifies every member except the actor.
func (l *Listener) fanOut(ctx context.Context, tripID, actor types.ID, title, body string) {
	t, err := l.trips.Get(ctx, tripID)
	if err != nil {
		return
	}
	for _, m := range t.Members {
		if m.UserID == actor {
			continue
		}
		l.worker.Enqueue(Notification{
			Recipient: m.UserID,
			Title:     title,
			Body:      body,
			Payload:   payload(tripID, "trip_update", nil),
		})
	}
}

func payload(tripID types.ID, kind string, extra map[string]string) map[string]string {
	p := map[string]string{"trip": string(tripID), "kind": kind}
	for k, v := range extra {
		p[k] = v
	}
	return p
}

func reasonText(reason string) string {
	switch reason {
	case "trip_started":
		return "The trip already started."
	case "trip_canceled":
		return "The trip was canceled."
	case "route_changed":
		return "The route changed and no longer fits your segment."
	default:
		return "The driver declined your request."
	}
}
