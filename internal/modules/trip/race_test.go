// README: Concurrency tests for the conditional-write contract.
package trip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// Two passengers fight for the last seat; the version precondition must let
// exactly one through.
func TestLastSeatRace(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()

	tr, err := svc.Create(ctx, CreateCommand{
		CreatedBy:     "driver",
		From:          mende,
		To:            florac,
		DepartureTime: time.Now().Add(time.Hour),
		SeatCount:     1,
		CanDrive:      true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const attempts = 8
	errs := make(chan error, attempts)
	start := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(user types.ID) {
			defer wg.Done()
			<-start
			errs <- svc.AddMember(ctx, tr.ID, Member{UserID: user, From: mende.ID, To: florac.ID, SeatCount: -1}, nil)
		}(types.ID(fmt.Sprintf("p%d", i)))
	}

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !errors.Is(err, ErrNoSeats) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	got, err := svc.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SeatsLeft() != 0 {
		t.Fatalf("seats left = %d, want 0", got.SeatsLeft())
	}
}

// Start and Cancel race on the same NotStarted trip; one transition wins,
// the other observes a conflict or an invalid state.
func TestStartCancelRace(t *testing.T) {
	svc := newTestService(NewMemoryStore())
	ctx := context.Background()
	tr := mustCreateTrip(t, svc, "driver", time.Now().Add(time.Hour))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	start := make(chan struct{})

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, err := svc.Start(ctx, tr.ID, "driver")
		errs <- err
	}()
	go func() {
		defer wg.Done()
		<-start
		_, err := svc.Cancel(ctx, tr.ID, "driver")
		errs <- err
	}()

	close(start)
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrConflict) && !IsInvalidState(err) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", success)
	}

	got, err := svc.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateStarted && got.State != StateCanceled {
		t.Fatalf("state = %s", got.State)
	}
}
