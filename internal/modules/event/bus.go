// README: In-process event bus: sequential dispatch, automatic-answer hook, best-effort wrapping.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/oxymore-tech/liane-sub002/internal/observability"
)

// Listener consumes events. A listener registered directly fails the whole
// dispatch when it errors; wrap it with BestEffort when its failure must not
// block the others.
type Listener interface {
	OnEvent(ctx context.Context, e Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, e Event) error

func (f ListenerFunc) OnEvent(ctx context.Context, e Event) error { return f(ctx, e) }

// Answer is an automatic-answer verdict for a JoinRequested event.
type Answer int

const (
	// AnswerNone leaves the request pending for a human.
	AnswerNone Answer = iota
	AnswerAccept
	AnswerDecline
)

// AnswerPolicy may resolve a JoinRequested before listeners run. Returning
// AnswerNone hands the request to the normal pending flow.
type AnswerPolicy interface {
	AutomaticAnswer(ctx context.Context, e JoinRequested) (Answer, error)
}

// DeclineAll rejects every join automatically. It is the policy for trips
// whose driver opted out of requests entirely.
type DeclineAll struct{}

func (DeclineAll) AutomaticAnswer(context.Context, JoinRequested) (Answer, error) {
	return AnswerDecline, nil
}

// NoAutomaticAnswer leaves every request pending.
type NoAutomaticAnswer struct{}

func (NoAutomaticAnswer) AutomaticAnswer(context.Context, JoinRequested) (Answer, error) {
	return AnswerNone, nil
}

// Resolver turns an automatic answer into its outcome event. The join module
// implements it: accept applies the member to the trip, decline records the
// rejection; either way the returned event replaces the JoinRequested on the
// bus.
type Resolver interface {
	Resolve(ctx context.Context, e JoinRequested, accept bool) (Event, error)
}

// Bus dispatches events to its listeners in registration order, in the
// caller's goroutine. A plain listener error aborts the remaining listeners
// and surfaces to the dispatcher; side effects already applied stay applied.
type Bus struct {
	policy    AnswerPolicy
	resolver  Resolver
	listeners []Listener
	logger    *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{policy: NoAutomaticAnswer{}, logger: logger}
}

// WithAnswerPolicy installs the automatic-answer hook. The resolver is
// required alongside the policy: an answer without a resolver could not be
// applied to the trip.
func (b *Bus) WithAnswerPolicy(policy AnswerPolicy, resolver Resolver) *Bus {
	b.policy = policy
	b.resolver = resolver
	return b
}

// Register appends a listener. Registration is meant for startup wiring and
// is not synchronized against concurrent Dispatch calls.
func (b *Bus) Register(l Listener) {
	b.listeners = append(b.listeners, l)
}

// Dispatch delivers e to every listener. A JoinRequested first passes the
// answer policy; when the policy answers, listeners never see the
// JoinRequested and instead receive the resolved outcome event.
func (b *Bus) Dispatch(ctx context.Context, e Event) error {
	observability.EventsDispatched.WithLabelValues(e.kind()).Inc()

	if jr, ok := e.(JoinRequested); ok && b.resolver != nil {
		ans, err := b.policy.AutomaticAnswer(ctx, jr)
		if err != nil {
			return fmt.Errorf("automatic answer: %w", err)
		}
		if ans != AnswerNone {
			outcome, err := b.resolver.Resolve(ctx, jr, ans == AnswerAccept)
			if err != nil {
				return fmt.Errorf("resolve automatic answer: %w", err)
			}
			return b.Dispatch(ctx, outcome)
		}
	}

	for _, l := range b.listeners {
		if err := l.OnEvent(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// BestEffort wraps a listener so its failures are logged and counted but
// never abort the dispatch. Notification fan-out runs under this wrapper.
func BestEffort(l Listener, logger *slog.Logger) Listener {
	return ListenerFunc(func(ctx context.Context, e Event) error {
		if err := l.OnEvent(ctx, e); err != nil {
			observability.ListenerFailures.WithLabelValues(e.kind()).Inc()
			logger.Warn("event listener failed", "kind", e.kind(), "trip", e.TripID(), "error", err)
		}
		return nil
	})
}
