package weather

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/a-kowalenko/classy-weather/internal/common"
)

// MinQueryLength is the trimmed rune count a query needs before it is looked up.
const MinQueryLength = 2

// DefaultStoreKey is the key the last query is persisted under.
const DefaultStoreKey = "location"

const storeTimeout = 2 * time.Second

var errPositionsUnavailable = errors.New("current location lookup is not configured")

// Dependencies are the collaborators of an Orchestrator. Positions and Store
// may be nil, which disables the current-location flow and persistence.
type Dependencies struct {
	Geo       GeoResolver
	Forecast  ForecastFetcher
	Positions *PositionResolver
	Store     QueryStore
	StoreKey  string
}

// Orchestrator owns the query of one widget and drives the
// resolve -> forecast chain for it. Every query change starts a new
// generation; only the chain of the current generation may write State.
type Orchestrator struct {
	geo       GeoResolver
	forecast  ForecastFetcher
	positions *PositionResolver
	store     QueryStore
	storeKey  string

	baseCtx context.Context
	stop    context.CancelFunc

	// order serializes query changes so persisted values follow generations.
	order sync.Mutex

	mu       sync.Mutex
	gen      uint64
	cancel   context.CancelFunc
	query    string
	position *Coordinates // device position behind the loaded forecast, if any
	state    State
	closed   bool
	version  uint64
	subs     map[int]subscriber
	nextSub  int
	pending  []transition

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewOrchestrator creates an idle Orchestrator.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	key := deps.StoreKey
	if key == "" {
		key = DefaultStoreKey
	}
	ctx, stop := context.WithCancel(context.Background())

	o := &Orchestrator{
		geo:       deps.Geo,
		forecast:  deps.Forecast,
		positions: deps.Positions,
		store:     deps.Store,
		storeKey:  key,
		baseCtx:   ctx,
		stop:      stop,
		state:     idleState("", 0),
		subs:      make(map[int]subscriber),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go o.notifyLoop()
	return o
}

// Restore reads the persisted query once and, if present, applies it.
func (o *Orchestrator) Restore(ctx context.Context) error {
	if o.store == nil {
		return nil
	}
	query, ok, err := o.store.Get(ctx, o.storeKey)
	if err != nil {
		log.Printf("INFO: could not restore last query: %v", err)
		return err
	}
	if !ok {
		return nil
	}
	o.OnQueryChange(query)
	return nil
}

// OnQueryChange persists query, supersedes the running chain and, when the
// query is long enough, starts a new one.
func (o *Orchestrator) OnQueryChange(query string) {
	o.order.Lock()
	defer o.order.Unlock()

	if o.isClosed() {
		return
	}
	o.persist(query)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	gen := o.supersedeLocked()
	o.query = query
	o.position = nil

	if common.TrimmedLen(query) < MinQueryLength {
		o.setLocked(idleState(query, gen))
		o.mu.Unlock()
		return
	}

	ctx := o.startLocked()
	o.setLocked(loadingState(query, gen))
	o.mu.Unlock()

	o.launch(func() { o.runSearch(ctx, gen, query) })
}

// UseCurrentPosition supersedes the running chain and resolves the forecast
// for the position reported by src.
func (o *Orchestrator) UseCurrentPosition(src PositionSource) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	gen := o.supersedeLocked()
	ctx := o.startLocked()

	next := o.state
	if next.Status == StatusLoading {
		next = idleState(o.query, gen)
	}
	next.Locating = true
	next.Generation = gen
	o.setLocked(next)
	o.mu.Unlock()

	o.launch(func() { o.runPosition(ctx, gen, src) })
}

// Refresh re-runs the chain behind the shown forecast: the search for the
// current query, or the device position it was resolved from. Failed chains
// are never refreshed.
func (o *Orchestrator) Refresh() bool {
	o.mu.Lock()
	if o.closed || o.state.Status != StatusLoaded {
		o.mu.Unlock()
		return false
	}
	if pos := o.position; pos != nil {
		o.mu.Unlock()
		o.UseCurrentPosition(StaticPosition(*pos))
		return true
	}
	if common.TrimmedLen(o.query) < MinQueryLength {
		o.mu.Unlock()
		return false
	}
	query := o.query
	o.mu.Unlock()

	o.OnQueryChange(query)
	return true
}

// Close unmounts the widget: in-flight work is cancelled and any late result
// is discarded.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.supersedeLocked()
	o.mu.Unlock()

	o.stop()
	close(o.done)
}

// Wait blocks until every launched chain has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// State returns a copy of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers fn to receive every state transition in order. The
// returned func removes it.
func (o *Orchestrator) Subscribe(fn func(State)) func() {
	_, unsubscribe := o.Watch(fn)
	return unsubscribe
}

// Watch is Subscribe that also returns the state fn starts from. fn sees
// exactly the transitions made after that snapshot.
func (o *Orchestrator) Watch(fn func(State)) (State, func()) {
	o.mu.Lock()
	id := o.nextSub
	o.nextSub++
	o.subs[id] = subscriber{from: o.version, fn: fn}
	current := o.state
	o.mu.Unlock()

	return current, func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// ResolveLocation is the first stage of a search chain.
func (o *Orchestrator) ResolveLocation(ctx context.Context, query string) (ResolvedLocation, error) {
	return o.geo.Resolve(ctx, strings.TrimSpace(query))
}

// FetchForecast is the second stage of every chain.
func (o *Orchestrator) FetchForecast(ctx context.Context, loc ResolvedLocation) (ForecastSeries, error) {
	return o.forecast.Fetch(ctx, loc.Latitude, loc.Longitude, loc.Timezone)
}

func (o *Orchestrator) runSearch(ctx context.Context, gen uint64, query string) {
	loc, err := o.ResolveLocation(ctx, query)
	if err != nil {
		o.reconcile(gen, ResolvedLocation{}, ForecastSeries{}, nil, err)
		return
	}
	o.runForecast(ctx, gen, loc, nil)
}

func (o *Orchestrator) runPosition(ctx context.Context, gen uint64, src PositionSource) {
	coords, err := src.CurrentPosition(ctx)
	if err != nil {
		o.reconcile(gen, ResolvedLocation{}, ForecastSeries{}, nil, err)
		return
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.setLocked(loadingState(o.query, gen))
	o.mu.Unlock()

	if o.positions == nil {
		o.reconcile(gen, ResolvedLocation{}, ForecastSeries{}, nil, errPositionsUnavailable)
		return
	}
	loc, err := o.positions.ResolveFromCoordinates(ctx, coords.Latitude, coords.Longitude)
	if err != nil {
		o.reconcile(gen, ResolvedLocation{}, ForecastSeries{}, nil, err)
		return
	}
	o.runForecast(ctx, gen, loc, &coords)
}

// runForecast fetches the forecast for loc. pos is the device position loc
// was resolved from, nil for searches.
func (o *Orchestrator) runForecast(ctx context.Context, gen uint64, loc ResolvedLocation, pos *Coordinates) {
	if !o.isCurrent(gen) {
		log.Printf("DEBUG: generation %d superseded before forecast fetch", gen)
		return
	}
	series, err := o.FetchForecast(ctx, loc)
	o.reconcile(gen, loc, series, pos, err)
}

// reconcile is the only place a chain writes state.
func (o *Orchestrator) reconcile(gen uint64, loc ResolvedLocation, series ForecastSeries, pos *Coordinates, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if gen != o.gen {
		log.Printf("DEBUG: discarding result of generation %d (current %d)", gen, o.gen)
		return
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}

	switch {
	case err == nil:
		o.position = pos
		o.setLocked(loadedState(o.query, gen, loc, series))
	case IsCancelled(err):
		log.Printf("DEBUG: generation %d cancelled: %v", gen, err)
		o.settleLocked(gen)
	default:
		log.Printf("INFO: generation %d failed: %v", gen, err)
		o.setLocked(errorState(o.query, gen, err))
	}
}

func (o *Orchestrator) persist(query string) {
	if o.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(o.baseCtx, storeTimeout)
	defer cancel()
	if err := o.store.Set(ctx, o.storeKey, query); err != nil {
		log.Printf("DEBUG: persisting query failed: %v", err)
	}
}

func (o *Orchestrator) launch(fn func()) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn()
	}()
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.gen
}

// supersedeLocked cancels the running chain and returns the new generation.
func (o *Orchestrator) supersedeLocked() uint64 {
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	return o.gen
}

func (o *Orchestrator) startLocked() context.Context {
	ctx, cancel := context.WithCancel(o.baseCtx)
	o.cancel = cancel
	return ctx
}

// settleLocked clears the indicators of a chain that ended without a result.
func (o *Orchestrator) settleLocked(gen uint64) {
	next := o.state
	changed := false
	if next.Status == StatusLoading {
		next = idleState(o.query, gen)
		changed = true
	}
	if next.Locating {
		next.Locating = false
		changed = true
	}
	if changed {
		next.Generation = gen
		o.setLocked(next)
	}
}

type transition struct {
	version uint64
	state   State
}

type subscriber struct {
	from uint64
	fn   func(State)
}

func (o *Orchestrator) setLocked(s State) {
	o.state = s
	o.version++
	o.pending = append(o.pending, transition{version: o.version, state: s})
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// notifyLoop delivers queued transitions to subscribers outside the lock.
func (o *Orchestrator) notifyLoop() {
	for {
		select {
		case <-o.wake:
		case <-o.done:
			o.flush()
			return
		}
		o.flush()
	}
}

func (o *Orchestrator) flush() {
	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	subs := make([]subscriber, 0, len(o.subs))
	for _, sub := range o.subs {
		subs = append(subs, sub)
	}
	o.mu.Unlock()

	for _, t := range batch {
		for _, sub := range subs {
			if t.version > sub.from {
				sub.fn(t.state)
			}
		}
	}
}
