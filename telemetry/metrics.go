package telemetry

// Histogram bucket definitions for different latency profiles
var (
	// ConnectBuckets for connect + bootstrap of a new connection (network round trips)
	ConnectBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	// SizeBuckets for encoded value sizes in bytes
	SizeBuckets = []float64{16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576}
)

// Codec Metrics
var (
	// CodecEncodeTotal counts encoded values by common format and compression method
	CodecEncodeTotal CounterVec = noopCounterVec{}

	// CodecDecodeTotal counts decoded values by common format and result (ok, error)
	CodecDecodeTotal CounterVec = noopCounterVec{}

	// CodecCompressionTotal counts compression attempts by method and outcome
	// (accepted, ratio_rejected, below_threshold, failed, unavailable)
	CodecCompressionTotal CounterVec = noopCounterVec{}

	// CodecEncodedBytes measures encoded body sizes after optional compression
	CodecEncodedBytes Histogram = NoopStat{}

	// CodecSoftFailuresTotal counts failures absorbed into a nil value plus a warning
	CodecSoftFailuresTotal CounterVec = noopCounterVec{}
)

// Connection Pool Metrics
var (
	// PoolAcquireTotal counts acquire calls by result (hit, miss, shared, error)
	PoolAcquireTotal CounterVec = noopCounterVec{}

	// PoolEvictionsTotal counts destroyed handles by reason (idle, lru, broken, close)
	PoolEvictionsTotal CounterVec = noopCounterVec{}

	// PoolConnectSeconds measures connect + bootstrap latency of cache misses
	PoolConnectSeconds Histogram = NoopStat{}

	// PoolHandles tracks cached handles by state (busy, idle)
	PoolHandles GaugeVec = noopGaugeVec{}

	// PoolSweepsTotal counts sweep passes
	PoolSweepsTotal Counter = NoopStat{}
)

// Transport Metrics
var (
	// TransportBootstrapTotal counts bootstrap attempts by kind and result
	TransportBootstrapTotal CounterVec = noopCounterVec{}

	// TransportCallbacksTotal counts dispatched responses by operation
	TransportCallbacksTotal CounterVec = noopCounterVec{}
)

// InitMetrics initializes all Prometheus metrics.
// Must be called after InitializeTelemetry().
func InitMetrics() {
	// Codec Metrics
	CodecEncodeTotal = NewCounterVec(
		"codec_encode_total",
		"Encoded values by common format and compression method",
		[]string{"format", "compression"},
	)
	CodecDecodeTotal = NewCounterVec(
		"codec_decode_total",
		"Decoded values by common format and result",
		[]string{"format", "result"},
	)
	CodecCompressionTotal = NewCounterVec(
		"codec_compression_total",
		"Compression attempts by method and outcome",
		[]string{"method", "outcome"},
	)
	CodecEncodedBytes = NewHistogramWithBuckets(
		"codec_encoded_bytes",
		"Encoded body size in bytes",
		SizeBuckets,
	)
	CodecSoftFailuresTotal = NewCounterVec(
		"codec_soft_failures_total",
		"Codec failures reported as nil values",
		[]string{"stage"},
	)

	// Connection Pool Metrics
	PoolAcquireTotal = NewCounterVec(
		"pool_acquire_total",
		"Connection acquire calls by result",
		[]string{"result"},
	)
	PoolEvictionsTotal = NewCounterVec(
		"pool_evictions_total",
		"Destroyed connection handles by reason",
		[]string{"reason"},
	)
	PoolConnectSeconds = NewHistogramWithBuckets(
		"pool_connect_seconds",
		"Connect and bootstrap latency in seconds",
		ConnectBuckets,
	)
	PoolHandles = NewGaugeVec(
		"pool_handles",
		"Cached connection handles by state",
		[]string{"state"},
	)
	PoolSweepsTotal = NewCounter(
		"pool_sweeps_total",
		"Total idle sweeps executed",
	)

	// Transport Metrics
	TransportBootstrapTotal = NewCounterVec(
		"transport_bootstrap_total",
		"Bootstrap attempts by connection kind and result",
		[]string{"kind", "result"},
	)
	TransportCallbacksTotal = NewCounterVec(
		"transport_callbacks_total",
		"Responses dispatched to installed callbacks by operation",
		[]string{"operation"},
	)
}

// UpdatePoolHandles sets the busy/idle handle gauges
func UpdatePoolHandles(busy, idle int) {
	PoolHandles.With("busy").Set(float64(busy))
	PoolHandles.With("idle").Set(float64(idle))
}
