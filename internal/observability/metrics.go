package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ztuff_orders_placed_total",
		Help: "Orders created successfully.",
	})

	StockConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztuff_stock_conflicts_total",
		Help: "Order placements rejected for stock reasons.",
	}, []string{"reason"})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztuff_order_transitions_total",
		Help: "Order status transitions by target status.",
	}, []string{"status"})

	ReturnTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztuff_return_transitions_total",
		Help: "Return request transitions by target status.",
	}, []string{"status"})

	RefundOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztuff_refund_outcomes_total",
		Help: "Refund settlement attempts by result.",
	}, []string{"result"})

	PaymentNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztuff_payment_notifications_total",
		Help: "Payment notifications handled by source and action.",
	}, []string{"source", "action"})

	HTTPErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztuff_http_errors_total",
		Help: "Application errors returned by HTTP handlers, by error code.",
	}, []string{"code"})

	HandlerPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ztuff_http_panics_total",
		Help: "Handler panics recovered, by route.",
	}, []string{"route"})
)
