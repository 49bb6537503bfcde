package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts sale lifecycle events. A nil *Recorder records nothing.
type Recorder struct {
	registry       *prometheus.Registry
	salesCreated   *prometheus.CounterVec
	abonos         prometheus.Counter
	salesEdited    prometheus.Counter
	salesDeleted   prometheus.Counter
	stockOverrides prometheus.Counter
	failures       *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		salesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bodega_sales_created_total",
			Help: "Sales committed, by kind.",
		}, []string{"kind"}),
		abonos: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bodega_abonos_total",
			Help: "Partial payments applied to outstanding debt.",
		}),
		salesEdited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bodega_sales_edited_total",
			Help: "Sale corrections committed.",
		}),
		salesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bodega_sales_deleted_total",
			Help: "Sales removed with stock restored.",
		}),
		stockOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bodega_stock_overrides_total",
			Help: "Sale corrections that left a product with negative stock.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bodega_sale_operation_failures_total",
			Help: "Failed sale lifecycle operations, by operation.",
		}, []string{"operation"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.salesCreated, r.abonos, r.salesEdited, r.salesDeleted, r.stockOverrides, r.failures,
	)
	return r
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) SaleCreated(kind string) {
	if r == nil {
		return
	}
	r.salesCreated.WithLabelValues(kind).Inc()
}

func (r *Recorder) AbonoApplied() {
	if r == nil {
		return
	}
	r.abonos.Inc()
}

func (r *Recorder) SaleEdited() {
	if r == nil {
		return
	}
	r.salesEdited.Inc()
}

func (r *Recorder) SaleDeleted() {
	if r == nil {
		return
	}
	r.salesDeleted.Inc()
}

func (r *Recorder) StockOverride() {
	if r == nil {
		return
	}
	r.stockOverrides.Inc()
}

func (r *Recorder) Failed(operation string) {
	if r == nil {
		return
	}
	r.failures.WithLabelValues(operation).Inc()
}
