// README: Detour insertion engine; decides how a candidate segment fits an existing route.
package match

import (
	"context"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/modules/trip"
	"github.com/oxymore-tech/liane-sub002/internal/observability"
	"github.com/oxymore-tech/liane-sub002/internal/routing"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type Config struct {
	// MaxDetour caps the total extra driving time an insertion may impose.
	MaxDetour time.Duration
	// MaxDetourMeters caps the total extra distance.
	MaxDetourMeters float64
}

func DefaultConfig() Config {
	return Config{MaxDetour: 15 * time.Minute, MaxDetourMeters: 10_000}
}

// Engine computes Match results. It holds no mutable state: identical inputs
// (trip route snapshot plus provider output) always produce identical
// results, and the input trip is never mutated.
type Engine struct {
	provider routing.Provider
	cfg      Config
}

func NewEngine(provider routing.Provider, cfg Config) *Engine {
	return &Engine{provider: provider, cfg: cfg}
}

// ComputeMatch decides how the (from, to) segment fits the trip's route.
// isDriverSegment marks a driver-side computation: the sequence returned in
// a Compatible match is then meant to be persisted, and the trip's own
// departure and arrival stay fixed. Passenger-side results are advisory
// until the join is accepted. Either way insertions are interior only, so
// the algorithm is shared.
func (e *Engine) ComputeMatch(ctx context.Context, t *trip.Trip, from, to trip.RallyingPoint, isDriverSegment bool) (Match, error) {
	start := time.Now()
	m, err := e.computeMatch(ctx, t, from, to)
	observability.MatchLatency.Observe(time.Since(start).Seconds())
	switch {
	case err == ErrIncompatibleRoute:
		observability.MatchesComputed.WithLabelValues("incompatible").Inc()
	case err != nil:
		observability.MatchesComputed.WithLabelValues("error").Inc()
	default:
		if _, ok := m.(Exact); ok {
			observability.MatchesComputed.WithLabelValues("exact").Inc()
		} else {
			observability.MatchesComputed.WithLabelValues("compatible").Inc()
		}
	}
	return m, err
}

func (e *Engine) computeMatch(ctx context.Context, t *trip.Trip, from, to trip.RallyingPoint) (Match, error) {
	if from.ID == to.ID || len(t.WayPoints) < 2 {
		return nil, ErrIncompatibleRoute
	}

	iFrom := t.WayPointIndex(from.ID)
	iTo := t.WayPointIndex(to.ID)
	if iFrom >= 0 && iTo >= 0 {
		if iFrom < iTo {
			return Exact{Pickup: from.ID, Deposit: to.ID}, nil
		}
		return nil, ErrIncompatibleRoute
	}

	// A point absent from the route needs geometry to be spliced in; a
	// rallying point that was removed from the referential has none.
	if iFrom < 0 && isZeroPoint(from.Location) {
		return nil, ErrIncompatibleRoute
	}
	if iTo < 0 && isZeroPoint(to.Location) {
		return nil, ErrIncompatibleRoute
	}

	plan, err := e.bestInsertion(ctx, t.WayPoints, from, to, iFrom, iTo)
	if err != nil {
		return nil, err
	}
	if plan.delta.Total > e.cfg.MaxDetour || plan.delta.TotalMeters > e.cfg.MaxDetourMeters {
		return nil, ErrIncompatibleRoute
	}
	return Compatible{Delta: plan.delta, WayPoints: plan.wayPoints}, nil
}

type insertionPlan struct {
	delta     Delta
	wayPoints []trip.WayPoint
	// gap positions chosen, kept for deterministic tie-breaking
	pFrom, pTo int
}

// bestInsertion scans the interior gaps of the route for the splice
// position(s) minimizing added distance while keeping pickup before deposit
// and every existing waypoint's ETA untouched or later.
func (e *Engine) bestInsertion(ctx context.Context, wps []trip.WayPoint, from, to trip.RallyingPoint, iFrom, iTo int) (insertionPlan, error) {
	n := len(wps)
	var best *insertionPlan

	// Gap p means "between wps[p-1] and wps[p]"; interior gaps only, so the
	// trip's own departure and arrival never move. A gap of -1 means the
	// point is already a waypoint and nothing is inserted for it.
	fromGaps := []int{-1}
	if iFrom < 0 {
		fromGaps = interiorGaps(n)
	}
	toGaps := []int{-1}
	if iTo < 0 {
		toGaps = interiorGaps(n)
	}

	for _, pFrom := range fromGaps {
		for _, pTo := range toGaps {
			cand, ok, err := e.tryInsertion(ctx, wps, from, to, iFrom, iTo, pFrom, pTo)
			if err != nil {
				return insertionPlan{}, err
			}
			if !ok {
				continue
			}
			if best == nil || less(cand, *best) {
				c := cand
				best = &c
			}
		}
	}
	if best == nil {
		return insertionPlan{}, ErrIncompatibleRoute
	}
	return *best, nil
}

func interiorGaps(n int) []int {
	gaps := make([]int, 0, n-1)
	for p := 1; p < n; p++ {
		gaps = append(gaps, p)
	}
	return gaps
}

// less orders candidate plans by added distance, breaking ties on gap
// positions so recomputation is reproducible.
func less(a, b insertionPlan) bool {
	if a.delta.TotalMeters != b.delta.TotalMeters {
		return a.delta.TotalMeters < b.delta.TotalMeters
	}
	if a.pFrom != b.pFrom {
		return a.pFrom < b.pFrom
	}
	return a.pTo < b.pTo
}

// tryInsertion evaluates one gap assignment. pFrom/pTo are -1 when the
// corresponding point is already a waypoint (index iFrom/iTo).
func (e *Engine) tryInsertion(ctx context.Context, wps []trip.WayPoint, from, to trip.RallyingPoint, iFrom, iTo, pFrom, pTo int) (insertionPlan, bool, error) {
	// Build the candidate sequence.
	seq := make([]trip.RallyingPoint, 0, len(wps)+2)
	for _, wp := range wps {
		seq = append(seq, wp.RallyingPoint)
	}
	// Insert deposit first so the pickup gap index stays valid, then check
	// ordering afterwards.
	if iTo < 0 {
		seq = insertAt(seq, pTo, to)
	}
	if iFrom < 0 {
		gap := pFrom
		if iTo < 0 && pTo < pFrom {
			gap = pFrom + 1
		}
		seq = insertAt(seq, gap, from)
	}

	posFrom := indexOf(seq, from.ID)
	posTo := indexOf(seq, to.ID)
	if posFrom < 0 || posTo < 0 || posFrom >= posTo {
		return insertionPlan{}, false, nil
	}

	plan, err := e.planFromSequence(ctx, wps, seq, from.ID, to.ID)
	if err != nil {
		return insertionPlan{}, false, err
	}
	plan.pFrom = pFrom
	plan.pTo = pTo
	return plan, true, nil
}

// planFromSequence recomputes legs and ETAs for a candidate sequence and
// derives the Delta against the original route. Existing legs keep their
// stored duration/distance; only legs touching an inserted point hit the
// geometry provider.
func (e *Engine) planFromSequence(ctx context.Context, orig []trip.WayPoint, seq []trip.RallyingPoint, fromID, toID types.ID) (insertionPlan, error) {
	origIdx := make(map[types.ID]int, len(orig))
	for i, wp := range orig {
		origIdx[wp.RallyingPoint.ID] = i
	}

	out := make([]trip.WayPoint, len(seq))
	out[0] = trip.WayPoint{RallyingPoint: seq[0], Eta: orig[0].Eta}

	var plan insertionPlan
	for i := 1; i < len(seq); i++ {
		prev, cur := seq[i-1], seq[i]

		var dur time.Duration
		var dist float64
		oPrev, prevKnown := origIdx[prev.ID]
		oCur, curKnown := origIdx[cur.ID]
		if prevKnown && curKnown && oCur == oPrev+1 {
			dur, dist = orig[oCur].Duration, orig[oCur].Distance
		} else {
			leg, err := e.provider.Route(ctx, []types.Point{prev.Location, cur.Location})
			if err != nil {
				return insertionPlan{}, err
			}
			dur, dist = leg.Duration, leg.Distance
		}

		out[i] = trip.WayPoint{
			RallyingPoint: cur,
			Eta:           out[i-1].Eta.Add(dur),
			Duration:      dur,
			Distance:      dist,
		}
	}

	// Delta: per-insertion share is the difference between the legs around
	// the inserted point and the original leg they replaced.
	var newDur time.Duration
	var newDist float64
	for _, wp := range out[1:] {
		newDur += wp.Duration
		newDist += wp.Distance
	}
	var oldDur time.Duration
	var oldDist float64
	for _, wp := range orig[1:] {
		oldDur += wp.Duration
		oldDist += wp.Distance
	}
	plan.delta.Total = newDur - oldDur
	plan.delta.TotalMeters = newDist - oldDist

	// Split the total between the two insertions. A point that was already a
	// waypoint cost nothing; when both were inserted, the deposit gets its
	// local share and the pickup the remainder, so the shares always sum to
	// the total (both landing in one gap makes the deposit share
	// inseparable, the pickup then carries it all).
	_, fromInserted := origIdx[fromID]
	_, toInserted := origIdx[toID]
	fromInserted, toInserted = !fromInserted, !toInserted
	switch {
	case fromInserted && !toInserted:
		plan.delta.Pickup, plan.delta.PickupMeters = plan.delta.Total, plan.delta.TotalMeters
	case toInserted && !fromInserted:
		plan.delta.Deposit, plan.delta.DepositMeters = plan.delta.Total, plan.delta.TotalMeters
	case fromInserted && toInserted:
		if d, m, ok := localShare(out, orig, origIdx, toID); ok {
			plan.delta.Deposit, plan.delta.DepositMeters = d, m
		}
		plan.delta.Pickup = plan.delta.Total - plan.delta.Deposit
		plan.delta.PickupMeters = plan.delta.TotalMeters - plan.delta.DepositMeters
	}

	// Invariant: no existing waypoint may move earlier than its promised ETA.
	for _, wp := range out {
		if oi, ok := origIdx[wp.RallyingPoint.ID]; ok {
			if wp.Eta.Before(orig[oi].Eta) {
				return insertionPlan{}, ErrIncompatibleRoute
			}
		}
	}

	plan.wayPoints = out
	return plan, nil
}

// localShare is the detour an inserted waypoint costs on its own: both legs
// around it minus the original leg they replaced. It only applies when the
// insertion's direct neighbours were consecutive on the original route.
func localShare(out, orig []trip.WayPoint, origIdx map[types.ID]int, id types.ID) (time.Duration, float64, bool) {
	var i int
	for i = range out {
		if out[i].RallyingPoint.ID == id {
			break
		}
	}
	if i == 0 || i+1 >= len(out) {
		return 0, 0, false
	}
	oPrev, prevOK := origIdx[out[i-1].RallyingPoint.ID]
	oNext, nextOK := origIdx[out[i+1].RallyingPoint.ID]
	if !prevOK || !nextOK || oNext != oPrev+1 {
		return 0, 0, false
	}
	d := out[i].Duration + out[i+1].Duration - orig[oNext].Duration
	m := out[i].Distance + out[i+1].Distance - orig[oNext].Distance
	return d, m, true
}

func insertAt(seq []trip.RallyingPoint, gap int, p trip.RallyingPoint) []trip.RallyingPoint {
	out := make([]trip.RallyingPoint, 0, len(seq)+1)
	out = append(out, seq[:gap]...)
	out = append(out, p)
	out = append(out, seq[gap:]...)
	return out
}

func indexOf(seq []trip.RallyingPoint, id types.ID) int {
	for i, p := range seq {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func isZeroPoint(p types.Point) bool {
	return p.Lat == 0 && p.Lng == 0
}
