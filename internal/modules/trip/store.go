// README: Trip persistence: conditional document updates with an embedded precondition.
package trip

import (
	"context"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

// Store persists trip documents. UpdateIf is the single mutation primitive:
// the expected state and version are part of the same atomic write as the
// new document, so a stale read can never produce a stale write.
type Store interface {
	Insert(ctx context.Context, t *Trip) error
	Get(ctx context.Context, id types.ID) (*Trip, error)
	// UpdateIf writes the document only if the stored row still has the
	// expected state and version. It returns false (and no error) when the
	// precondition failed because another writer got there first.
	UpdateIf(ctx context.Context, id types.ID, expectState State, expectVersion int, next *Trip) (bool, error)
	// ListNotStartedBefore returns NotStarted trips whose departure time is
	// before the cutoff; it backs the cancellation sweep and requires an
	// index on (state, departure_time).
	ListNotStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Trip, error)
	AppendChange(ctx context.Context, rec *ChangeRecord) error
}
