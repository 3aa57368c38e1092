package embedpool

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jackc/puddle/v2"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// slot is the value puddle stores: one instance plus its history.
type slot struct {
	emb     *Embedding
	metrics Metrics

	// owner is the Get call whose Acquire constructed this instance. Only
	// that call may skip Recycle; an abandoned Get leaves the instance idle
	// with a stale owner.
	owner *acquireToken
}

// acquireToken identifies one Get call. puddle hands the Acquire context's
// values to the constructor.
type acquireToken struct{ _ byte }

type acquireKey struct{}

// Pool hands out model instances built by a Manager.
type Pool struct {
	manager Manager
	config  PoolConfig
	runtime Runtime
	logger  *zap.Logger
	metrics *poolMetrics
	pool    *puddle.Pool[*slot]

	closeOnce sync.Once
}

func newPool(manager Manager, cfg PoolConfig, rt Runtime, logger *zap.Logger, meter metric.Meter) (*Pool, error) {
	if cfg.MaxSize > math.MaxInt32 {
		return nil, &BuildError{Err: ErrInvalidMaxSize}
	}

	kind, model := Kind(0), "custom"
	if m, ok := manager.(interface{ Model() ModelKind }); ok {
		mk := m.Model()
		kind, model = mk.Kind(), mk.Model()
	}

	p := &Pool{
		manager: manager,
		config:  cfg,
		runtime: rt,
		logger:  logger.With(zap.String("kind", kind.String()), zap.String("model", model)),
	}
	p.metrics = newPoolMetrics(meter, p.logger, kind, model)

	pp, err := puddle.NewPool(&puddle.Config[*slot]{
		Constructor: p.construct,
		Destructor:  p.destroy,
		MaxSize:     int32(cfg.MaxSize),
	})
	if err != nil {
		return nil, &BuildError{Err: err}
	}
	p.pool = pp
	p.metrics.observe(meter, p.Status)
	return p, nil
}

func (p *Pool) construct(ctx context.Context) (*slot, error) {
	if d := p.config.Timeouts.Create; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = p.runtime.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	emb, err := p.manager.Create(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.metrics.recordCreate(ctx, "timeout")
			p.logger.Warn("model creation timed out", zap.Duration("timeout", p.config.Timeouts.Create))
			return nil, &TimeoutError{Op: TimeoutCreate}
		}
		p.metrics.recordCreate(ctx, "error")
		p.logger.Warn("model creation failed", zap.Error(err))
		return nil, err
	}

	p.metrics.recordCreate(ctx, "ok")
	p.logger.Debug("model instance created", zap.Duration("duration", time.Since(start)))

	owner, _ := ctx.Value(acquireKey{}).(*acquireToken)
	return &slot{
		emb:     emb,
		metrics: Metrics{Created: time.Now()},
		owner:   owner,
	}, nil
}

func (p *Pool) destroy(s *slot) {
	if err := s.emb.Close(); err != nil {
		p.logger.Warn("closing model instance", zap.Error(err))
	}
}

// Get returns an instance, waiting for a free slot when the pool is at
// MaxSize. Reused instances pass through Manager.Recycle first; one that
// fails is destroyed and Get tries again.
func (p *Pool) Get(ctx context.Context) (*Object, error) {
	start := time.Now()
	defer func() { p.metrics.recordAcquire(ctx, time.Since(start)) }()

	token := &acquireToken{}
	ctx = context.WithValue(ctx, acquireKey{}, token)

	parent := ctx
	if d := p.config.Timeouts.Wait; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = p.runtime.WithTimeout(ctx, d)
		defer cancel()
	}

	for {
		res, err := p.pool.Acquire(ctx)
		if err != nil {
			switch {
			case errors.Is(err, puddle.ErrClosedPool):
				return nil, ErrPoolClosed
			case ctx.Err() != nil && parent.Err() == nil:
				return nil, &TimeoutError{Op: TimeoutWait}
			}
			return nil, err
		}

		s := res.Value()
		fresh := s.owner == token
		s.owner = nil
		if fresh {
			return &Object{res: res}, nil
		}

		if err := p.recycle(ctx, s); err != nil {
			p.logger.Info("discarding instance that failed recycle", zap.Error(err))
			res.Destroy()
			if ctx.Err() != nil {
				return nil, err
			}
			continue
		}
		return &Object{res: res}, nil
	}
}

func (p *Pool) recycle(ctx context.Context, s *slot) error {
	if d := p.config.Timeouts.Recycle; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = p.runtime.WithTimeout(ctx, d)
		defer cancel()
	}

	if err := p.manager.Recycle(ctx, s.emb, s.metrics); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.metrics.recordRecycle(ctx, "timeout")
			return &TimeoutError{Op: TimeoutRecycle}
		}
		p.metrics.recordRecycle(ctx, "error")
		return err
	}

	s.metrics.Recycled = time.Now()
	s.metrics.RecycleCount++
	p.metrics.recordRecycle(ctx, "ok")
	return nil
}

// Warm constructs up to n idle instances concurrently, stopping early when
// the pool is full. It returns the first construction error.
func (p *Pool) Warm(ctx context.Context, n int) error {
	n = min(n, p.config.MaxSize-int(p.pool.Stat().TotalResources()))
	if n <= 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error {
			err := p.pool.CreateResource(gctx)
			switch {
			case errors.Is(err, puddle.ErrNotAvailable):
				return nil
			case errors.Is(err, puddle.ErrClosedPool):
				return ErrPoolClosed
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	p.logger.Debug("pool warmed", zap.Int("instances", n))
	return nil
}

// Status is a snapshot of pool usage.
type Status struct {
	MaxSize      int `json:"max_size"`
	Size         int `json:"size"`
	Idle         int `json:"idle"`
	InUse        int `json:"in_use"`
	Constructing int `json:"constructing"`

	AcquireCount         int64         `json:"acquire_count"`
	EmptyAcquireCount    int64         `json:"empty_acquire_count"`
	CanceledAcquireCount int64         `json:"canceled_acquire_count"`
	AcquireDuration      time.Duration `json:"acquire_duration"`
}

// Status returns current pool usage.
func (p *Pool) Status() Status {
	st := p.pool.Stat()
	return Status{
		MaxSize:              int(st.MaxResources()),
		Size:                 int(st.TotalResources()),
		Idle:                 int(st.IdleResources()),
		InUse:                int(st.AcquiredResources()),
		Constructing:         int(st.ConstructingResources()),
		AcquireCount:         st.AcquireCount(),
		EmptyAcquireCount:    st.EmptyAcquireCount(),
		CanceledAcquireCount: st.CanceledAcquireCount(),
		AcquireDuration:      st.AcquireDuration(),
	}
}

// Config returns the settings the pool was built with.
func (p *Pool) Config() PoolConfig {
	return p.config
}

// Close closes every instance and rejects later Gets with ErrPoolClosed. It
// blocks until checked-out objects are released.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.pool.Close()
		p.metrics.close()
		p.logger.Debug("pool closed")
	})
}

// Object is an instance checked out of a Pool. Call exactly one of Release
// or Discard when done.
type Object struct {
	res *puddle.Resource[*slot]
}

// Embedding returns the checked-out instance.
func (o *Object) Embedding() *Embedding {
	return o.res.Value().emb
}

// Metrics returns the instance history.
func (o *Object) Metrics() Metrics {
	return o.res.Value().metrics
}

// Release returns the instance to the pool for reuse.
func (o *Object) Release() {
	o.res.Release()
}

// Discard closes the instance and frees its slot.
func (o *Object) Discard() {
	o.res.Destroy()
}
