package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики движка репликации
// ============================================================
//
// - латентность размещения зеркальных ордеров
// - счётчики попыток репликации по статусам
// - состояние потоков мастеров и алерты на постоянные отказы

// ============ Метрики латентности ============

// OrderPlacementLatency - время от уведомления до подтверждения ордера копировщика
var OrderPlacementLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "copytrader",
		Subsystem: "replication",
		Name:      "order_latency_ms",
		Help:      "Mirrored order placement latency in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000, 15000},
	},
	[]string{"status"},
)

// SessionWaitLatency - ожидание свободного слота в пуле сессий
var SessionWaitLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "copytrader",
		Subsystem: "replication",
		Name:      "session_wait_ms",
		Help:      "Time spent waiting for an outbound session slot in milliseconds",
		Buckets:   []float64{0.1, 1, 5, 25, 100, 500, 2000, 10000},
	},
)

// ============ Счётчики событий ============

// TransactionsReceived - транзакции мастеров из потока
var TransactionsReceived = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrader",
		Subsystem: "feed",
		Name:      "transactions_total",
		Help:      "Total number of master transactions received",
	},
	[]string{"result"}, // replicated, ignored, duplicate
)

// CopiedTradesTotal - записи репликации по статусам
var CopiedTradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrader",
		Subsystem: "replication",
		Name:      "copied_trades_total",
		Help:      "Total number of replication attempts by status",
	},
	[]string{"status"}, // SUCCESS, FAILED
)

// RecordWriteErrors - не удалось сохранить запись репликации
var RecordWriteErrors = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "copytrader",
		Subsystem: "replication",
		Name:      "record_write_errors_total",
		Help:      "Number of replication records that could not be persisted",
	},
)

// DedupFallbacks - ошибки внешнего дедупликатора, решение принято по памяти процесса
var DedupFallbacks = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "copytrader",
		Subsystem: "replication",
		Name:      "dedup_fallbacks_total",
		Help:      "Number of dedup checks answered locally after a shared store error",
	},
)

// FanoutSize - количество копировщиков на одну сделку
var FanoutSize = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "copytrader",
		Subsystem: "replication",
		Name:      "fanout_copiers",
		Help:      "Number of active copiers per replicated transaction",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	},
)

// ============ Метрики состояния ============

// InFlightSessions - открытые сессии размещения ордеров
var InFlightSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "copytrader",
		Subsystem: "replication",
		Name:      "in_flight_sessions",
		Help:      "Current number of open order placement sessions",
	},
)

// FeedStates - количество потоков мастеров по состояниям
var FeedStates = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "copytrader",
		Subsystem: "feed",
		Name:      "streams",
		Help:      "Number of master feeds by state",
	},
	[]string{"state"}, // connecting, subscribed, reconnecting, failed
)

// FeedFailures - потоки, исчерпавшие бюджет попыток или отвергнутые площадкой
var FeedFailures = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "copytrader",
		Subsystem: "feed",
		Name:      "failures_total",
		Help:      "Number of master feeds that failed permanently",
	},
)

// FeedReconnects - переподключения потоков
var FeedReconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "copytrader",
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Number of master feed reconnect attempts",
	},
)

// ============ Метрики расчётов ============

// SettlementsTotal - расчёты комиссии
var SettlementsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "copytrader",
		Subsystem: "settlement",
		Name:      "settlements_total",
		Help:      "Total number of settlement calls by result",
	},
	[]string{"result"}, // charged, zero_fee, already_processed, error
)

// FeesCharged - сумма начисленных комиссий
var FeesCharged = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "copytrader",
		Subsystem: "settlement",
		Name:      "fees_charged_total",
		Help:      "Total performance fees charged",
	},
)

// ============ Вспомогательные функции ============

// RecordCopiedTrade записывает исход попытки репликации
func RecordCopiedTrade(status string, latencyMs float64) {
	CopiedTradesTotal.WithLabelValues(status).Inc()
	OrderPlacementLatency.WithLabelValues(status).Observe(latencyMs)
}

// RecordTransaction записывает входящую транзакцию мастера
func RecordTransaction(result string) {
	TransactionsReceived.WithLabelValues(result).Inc()
}

// RecordSettlement записывает исход расчёта
func RecordSettlement(result string, fee float64) {
	SettlementsTotal.WithLabelValues(result).Inc()
	if fee > 0 {
		FeesCharged.Add(fee)
	}
}
