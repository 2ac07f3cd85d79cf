// README: Join request store contract.
package join

import (
	"context"

	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type Store interface {
	Insert(ctx context.Context, r *Request) error
	Get(ctx context.Context, id types.ID) (*Request, error)
	// Delete is idempotent; deleting an already-answered request reports
	// ErrNotFound so racing answerers can tell they lost.
	Delete(ctx context.Context, id types.ID) error
	ListByTrip(ctx context.Context, tripID types.ID) ([]*Request, error)
	ListByRequester(ctx context.Context, userID types.ID) ([]*Request, error)
}
