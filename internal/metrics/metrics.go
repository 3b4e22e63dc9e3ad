package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolfees_http_requests_total",
		Help: "Total HTTP requests by route, method and status",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schoolfees_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	CollectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolfees_collections_total",
		Help: "Fee collections recorded, by payment method",
	}, []string{"payment_method"})

	CollectedAmountTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolfees_collected_amount_total",
		Help: "Sum of collected amounts, by payment method",
	}, []string{"payment_method"})

	RejectedCollectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolfees_collections_rejected_total",
		Help: "Collection attempts rejected by a business rule",
	}, []string{"reason"})

	AssignmentsCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolfees_assignments_created_total",
		Help: "Student fee assignments created, by source",
	}, []string{"source"})

	WalletMovementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolfees_wallet_movements_total",
		Help: "Staff wallet ledger entries, by transaction type",
	}, []string{"type"})

	WalletWithdrawnAmountTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "schoolfees_wallet_withdrawn_amount_total",
		Help: "Sum of amounts withdrawn from staff wallets",
	})

	JobRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolfees_job_runs_total",
		Help: "Background job runs, by job and result",
	}, []string{"job", "result"})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schoolfees_job_duration_seconds",
		Help:    "Background job duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
)

var registerOnce sync.Once

// Register adds every collector to reg. Safe to call more than once.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			CollectionsTotal,
			CollectedAmountTotal,
			RejectedCollectionsTotal,
			AssignmentsCreatedTotal,
			WalletMovementsTotal,
			WalletWithdrawnAmountTotal,
			JobRunsTotal,
			JobDuration,
		)
	})
}

// Handler serves the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency per matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveCollection counts a recorded collection
func ObserveCollection(method string, amount decimal.Decimal) {
	CollectionsTotal.WithLabelValues(method).Inc()
	CollectedAmountTotal.WithLabelValues(method).Add(amount.InexactFloat64())
}

// ObserveRejection counts a collection refused by a business rule
func ObserveRejection(reason string) {
	RejectedCollectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveAssignments counts created assignments
func ObserveAssignments(source string, n int64) {
	if n > 0 {
		AssignmentsCreatedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ObserveWalletMovement counts a ledger entry; withdrawals also add to the withdrawn sum
func ObserveWalletMovement(txType string, amount decimal.Decimal) {
	WalletMovementsTotal.WithLabelValues(txType).Inc()
	if amount.IsNegative() {
		WalletWithdrawnAmountTotal.Add(amount.Neg().InexactFloat64())
	}
}

// ObserveJob records a background job run
func ObserveJob(name string, err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	JobRunsTotal.WithLabelValues(name, result).Inc()
	JobDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}
