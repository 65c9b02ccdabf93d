package market

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bankcore/internal/domain"
	"bankcore/internal/metrics"
	"bankcore/internal/service"
)

// ErrNotStarted is returned by calls made before Start.
var ErrNotStarted = errors.New("matching engine not started")

// Engine matches open orders in the background.
type Engine interface {
	Start(ctx context.Context) error
	Shutdown()
	// Enqueue schedules one order, for processes that place orders themselves.
	Enqueue(ctx context.Context, orderID string) error
	// Resume schedules every open order that is not already being matched and
	// stops work on orders that were closed elsewhere.
	Resume(ctx context.Context) error
	// Cancel stops matching orderID and waits for its worker to exit.
	Cancel(ctx context.Context, orderID string) error
}

type Config struct {
	MaxConcurrent int
	// SweepInterval is how often the book is re-scanned for orders placed
	// by other processes. Zero disables sweeping.
	SweepInterval time.Duration
	Logger        *logrus.Logger
}

type engine struct {
	cfg    Config
	market service.MarketService

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	active map[string]*orderHandle

	stocksMu sync.Mutex
	stocks   map[string]*sync.Mutex
}

type orderHandle struct {
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

func NewEngine(cfg Config, market service.MarketService) Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &engine{
		cfg:    cfg,
		market: market,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
		active: make(map[string]*orderHandle),
		stocks: make(map[string]*sync.Mutex),
	}
}

func (e *engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()
	if e.cfg.SweepInterval > 0 {
		e.wg.Add(1)
		go e.sweep()
	}
	e.cfg.Logger.Infof("matching engine started, %d workers", e.cfg.MaxConcurrent)
	return nil
}

func (e *engine) Shutdown() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.cfg.Logger.Info("matching engine stopped")
}

func (e *engine) sweep() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if err := e.Resume(e.ctx); err != nil && e.ctx.Err() == nil {
				e.cfg.Logger.Warnf("sweep order book: %v", err)
			}
		}
	}
}

func (e *engine) started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx != nil
}

func (e *engine) Enqueue(ctx context.Context, orderID string) error {
	if !e.started() {
		return ErrNotStarted
	}
	order, err := e.market.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Open() {
		e.spawnOrder(*order)
	}
	return nil
}

func (e *engine) Resume(ctx context.Context) error {
	if !e.started() {
		return ErrNotStarted
	}
	snapshot := time.Now()
	orders, err := e.market.OpenOrders(ctx)
	if err != nil {
		return err
	}
	open := make(map[string]struct{}, len(orders))
	for i := range orders {
		open[orders[i].ID] = struct{}{}
		e.spawnOrder(orders[i])
	}
	e.dropClosed(open, snapshot)
	return nil
}

// dropClosed cancels workers whose order is no longer open, typically because
// it was cancelled from another process. Workers spawned after snapshot are
// kept: their order may be newer than the listing.
func (e *engine) dropClosed(open map[string]struct{}, snapshot time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, h := range e.active {
		if _, ok := open[id]; ok || h.started.After(snapshot) {
			continue
		}
		e.cfg.Logger.WithField("order_id", id).Info("order closed elsewhere, matching stopped")
		h.cancel()
	}
}

func (e *engine) spawnOrder(order domain.Order) {
	orderCtx, cancel := context.WithCancel(e.ctx)
	handle := &orderHandle{
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	if !e.registerOrder(order.ID, handle) {
		cancel()
		return
	}
	metrics.MatchingStarted()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.unregisterOrder(order.ID)
			cancel()
			metrics.MatchingDone()
			close(handle.done)
		}()
		select {
		case <-e.ctx.Done():
			return
		case <-orderCtx.Done():
			return
		case e.sem <- struct{}{}:
			defer func() { <-e.sem }()
			e.handleOrder(orderCtx, &order)
		}
	}()
}

// registerOrder reports false when the order is already being matched.
func (e *engine) registerOrder(id string, handle *orderHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[id]; busy {
		return false
	}
	e.active[id] = handle
	return true
}

func (e *engine) unregisterOrder(id string) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

func (e *engine) getOrderHandle(id string) (*orderHandle, bool) {
	e.mu.Lock()
	handle, ok := e.active[id]
	e.mu.Unlock()
	return handle, ok
}

func (e *engine) Cancel(ctx context.Context, orderID string) error {
	if !e.started() {
		return ErrNotStarted
	}
	handle, ok := e.getOrderHandle(orderID)
	if !ok {
		return nil
	}
	handle.cancel()

	select {
	case <-handle.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stockLock serialises matching per stock so two workers never consume the
// same resting order.
func (e *engine) stockLock(stockID string) *sync.Mutex {
	e.stocksMu.Lock()
	defer e.stocksMu.Unlock()
	l, ok := e.stocks[stockID]
	if !ok {
		l = &sync.Mutex{}
		e.stocks[stockID] = l
	}
	return l
}

func (e *engine) handleOrder(ctx context.Context, order *domain.Order) {
	logger := e.cfg.Logger.WithFields(logrus.Fields{"order_id": order.ID, "stock_id": order.StockID})

	lock := e.stockLock(order.StockID)
	lock.Lock()
	defer lock.Unlock()

	if ctx.Err() != nil {
		logger.Debug("matching cancelled before start")
		return
	}
	trades, err := e.market.Match(ctx, order.ID)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("matching cancelled")
			return
		}
		logger.Errorf("match order: %v", err)
		return
	}
	if len(trades) > 0 {
		logger.WithField("trades", len(trades)).Info("order matched")
	}
}
