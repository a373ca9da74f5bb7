package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssamtools/go-ssam-server/internal/logging"
)

// Prometheus counters
var (
	SerialTxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_messages_total",
		Help: "Total SSH messages written to the serial link.",
	})
	SerialTxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_tx_bytes_total",
		Help: "Total wire bytes written to the serial link.",
	})
	SerialRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "serial_rx_bytes_total",
		Help: "Total bytes read from the serial link (drained, not decoded).",
	})
	TCPRxSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_rx_submissions_total",
		Help: "Total control submissions received from TCP clients.",
	})
	TCPTxMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcp_tx_messages_total",
		Help: "Total built SSH messages streamed to TCP clients.",
	})
	EncodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "encode_failures_total",
		Help: "Total message builds rejected (buffer sizing or payload range).",
	})
	MalformedSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_submissions_total",
		Help: "Total rejected malformed control submissions (unknown op, truncated, oversize).",
	})
	HubDroppedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_dropped_messages_total",
		Help: "Total messages dropped by hub due to slow clients.",
	})
	HubKickedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_kicked_clients_total",
		Help: "Total clients disconnected due to backpressure kick policy.",
	})
	HubRejectedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_rejected_clients_total",
		Help: "Total client connection attempts rejected (e.g., max-clients).",
	})
	HubActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_active_clients",
		Help: "Current number of active connected clients.",
	})
	HubBroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_broadcast_fanout",
		Help: "Number of clients targeted in the most recent broadcast.",
	})
	HubQueueDepthMax = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_max",
		Help: "Observed max queued messages among clients since last sample window.",
	})
	HubQueueDepthAvg = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_queue_depth_avg",
		Help: "Approximate average queued messages per client in last sample.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTCPRead        = "tcp_read"
	ErrTCPWrite       = "tcp_write"
	ErrHandshake      = "handshake"
	ErrSerialWrite    = "serial_write"
	ErrSerialOverflow = "serial_tx_overflow"
	ErrSerialRead     = "serial_read"
	ErrEncode         = "encode"
)

// StartHTTP serves Prometheus metrics at /metrics, plus /ready, on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localSerialTx      uint64
	localSerialTxBytes uint64
	localSerialRxBytes uint64
	localTCPRx         uint64
	localTCPTx         uint64
	localEncodeFail    uint64
	localMalformed     uint64
	localHubDrop       uint64
	localHubKick       uint64
	localHubReject     uint64
	localErrors        uint64
	localHubClients    uint64
	localFanout        uint64
	localQDMax         uint64
	localQDAvg         uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SerialTx      uint64
	SerialTxBytes uint64
	SerialRxBytes uint64
	TCPRx         uint64
	TCPTx         uint64
	EncodeFail    uint64
	Malformed     uint64
	HubDrops      uint64
	HubKicks      uint64
	HubRejects    uint64
	Errors        uint64 // sum across error labels
	HubClients    uint64
	Fanout        uint64
	QueueDepthMax uint64
	QueueDepthAvg uint64
}

func Snap() Snapshot {
	return Snapshot{
		SerialTx:      atomic.LoadUint64(&localSerialTx),
		SerialTxBytes: atomic.LoadUint64(&localSerialTxBytes),
		SerialRxBytes: atomic.LoadUint64(&localSerialRxBytes),
		TCPRx:         atomic.LoadUint64(&localTCPRx),
		TCPTx:         atomic.LoadUint64(&localTCPTx),
		EncodeFail:    atomic.LoadUint64(&localEncodeFail),
		Malformed:     atomic.LoadUint64(&localMalformed),
		HubDrops:      atomic.LoadUint64(&localHubDrop),
		HubKicks:      atomic.LoadUint64(&localHubKick),
		HubRejects:    atomic.LoadUint64(&localHubReject),
		Errors:        atomic.LoadUint64(&localErrors),
		HubClients:    atomic.LoadUint64(&localHubClients),
		Fanout:        atomic.LoadUint64(&localFanout),
		QueueDepthMax: atomic.LoadUint64(&localQDMax),
		QueueDepthAvg: atomic.LoadUint64(&localQDAvg),
	}
}

// Wrapper helpers to keep call sites simple.
func IncSerialTx(bytes int) {
	SerialTxMessages.Inc()
	SerialTxBytes.Add(float64(bytes))
	atomic.AddUint64(&localSerialTx, 1)
	atomic.AddUint64(&localSerialTxBytes, uint64(bytes))
}

func AddSerialRxBytes(n int) {
	SerialRxBytes.Add(float64(n))
	atomic.AddUint64(&localSerialRxBytes, uint64(n))
}

func IncTCPRx() {
	TCPRxSubmissions.Inc()
	atomic.AddUint64(&localTCPRx, 1)
}

func AddTCPTx(n int) {
	TCPTxMessages.Add(float64(n))
	atomic.AddUint64(&localTCPTx, uint64(n))
}

func IncEncodeFailure() {
	EncodeFailures.Inc()
	atomic.AddUint64(&localEncodeFail, 1)
}

func IncMalformed() {
	MalformedSubmissions.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func IncHubDrop() {
	HubDroppedMessages.Inc()
	atomic.AddUint64(&localHubDrop, 1)
}

func IncHubKick() {
	HubKickedClients.Inc()
	atomic.AddUint64(&localHubKick, 1)
}

func IncHubReject() {
	HubRejectedClients.Inc()
	atomic.AddUint64(&localHubReject, 1)
}

func SetHubClients(n int) {
	HubActiveClients.Set(float64(n))
	atomic.StoreUint64(&localHubClients, uint64(n))
}

func SetBroadcastFanout(n int) {
	HubBroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// SetQueueDepth records a snapshot of max and avg queue depth.
func SetQueueDepth(max, avg int) {
	HubQueueDepthMax.Set(float64(max))
	HubQueueDepthAvg.Set(float64(avg))
	atomic.StoreUint64(&localQDMax, uint64(max))
	atomic.StoreUint64(&localQDAvg, uint64(avg))
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register common error label series so first error does not log a registration latency.
	for _, lbl := range []string{
		ErrTCPRead, ErrTCPWrite, ErrHandshake,
		ErrSerialWrite, ErrSerialOverflow, ErrSerialRead, ErrEncode,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
