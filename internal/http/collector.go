package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fyrsmithlabs/embedpool/pkg/embedpool"
)

// registerPoolCollector exposes pool status on reg. Values are read from
// pool.Status at scrape time.
//
// Metrics:
//   - embedpool_pool_max_size - Configured maximum instances
//   - embedpool_pool_size - Instances alive, idle or in use
//   - embedpool_pool_idle - Instances waiting in the pool
//   - embedpool_pool_in_use - Instances checked out
//   - embedpool_pool_acquires_total - Successful Gets
//   - embedpool_pool_empty_acquires_total - Gets that had to wait or create
//   - embedpool_pool_canceled_acquires_total - Gets canceled while waiting
func registerPoolCollector(reg prometheus.Registerer, pool Pool, model embedpool.ModelKind) error {
	labels := prometheus.Labels{
		"kind":  model.Kind().String(),
		"model": model.Model(),
	}
	var cs []prometheus.Collector

	gauge := func(name, help string, value func(embedpool.Status) int) {
		cs = append(cs, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "embedpool",
			Subsystem:   "pool",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(value(pool.Status())) }))
	}
	counter := func(name, help string, value func(embedpool.Status) int64) {
		cs = append(cs, prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "embedpool",
			Subsystem:   "pool",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(value(pool.Status())) }))
	}

	gauge("max_size", "Configured maximum number of model instances.", func(s embedpool.Status) int { return s.MaxSize })
	gauge("size", "Model instances currently alive.", func(s embedpool.Status) int { return s.Size })
	gauge("idle", "Model instances waiting in the pool.", func(s embedpool.Status) int { return s.Idle })
	gauge("in_use", "Model instances checked out.", func(s embedpool.Status) int { return s.InUse })
	counter("acquires_total", "Successful pool acquires.", func(s embedpool.Status) int64 { return s.AcquireCount })
	counter("empty_acquires_total", "Acquires that found no idle instance.", func(s embedpool.Status) int64 { return s.EmptyAcquireCount })
	counter("canceled_acquires_total", "Acquires canceled while waiting.", func(s embedpool.Status) int64 { return s.CanceledAcquireCount })

	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
