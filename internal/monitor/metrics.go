package monitor

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	// 会话指标
	SessionConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrometer_session_connected",
		Help: "会话连接状态(1=已连接)",
	})

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrometer_queue_depth",
		Help: "待发送指令队列深度",
	})

	// 指令与响应指标
	CommandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spectrometer_commands_sent_total",
			Help: "发送的指令总数",
		},
		[]string{"command"},
	)

	ResponsesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spectrometer_responses_total",
			Help: "收到的有效响应总数",
		},
		[]string{"command"},
	)

	ProtocolErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrometer_protocol_errors_total",
		Help: "协议解析错误数(坏帧/校验和不匹配)",
	})

	IOErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrometer_io_errors_total",
		Help: "链路级故障数",
	})

	BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrometer_bytes_written_total",
		Help: "写入设备的字节总数",
	})

	BytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrometer_bytes_read_total",
		Help: "从设备读取的字节总数",
	})

	// 扫描指标
	ScansStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrometer_scans_started_total",
		Help: "启动的扫描次数",
	})

	ScansCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrometer_scans_completed_total",
		Help: "完成的扫描次数",
	})

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spectrometer_scan_duration_seconds",
		Help:    "单次扫描耗时",
		Buckets: prometheus.DefBuckets,
	})

	PeaksDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spectrometer_peaks_detected_total",
		Help: "检测到的峰值总数",
	})

	// Goroutine指标
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrometer_goroutines",
		Help: "当前Goroutine数量",
	})

	// 内存指标
	MemoryUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrometer_memory_usage_bytes",
		Help: "内存使用量",
	})
)

type Monitor struct {
	log *logrus.Logger
}

func NewMonitor(log *logrus.Logger) *Monitor {
	// 注册指标
	prometheus.MustRegister(
		SessionConnected,
		QueueDepth,
		CommandsSent,
		ResponsesReceived,
		ProtocolErrors,
		IOErrors,
		BytesWritten,
		BytesRead,
		ScansStarted,
		ScansCompleted,
		ScanDuration,
		PeaksDetected,
		GoroutineCount,
		MemoryUsage,
	)

	return &Monitor{log: log}
}

// StartMetricsServer 启动Metrics HTTP服务器
func (m *Monitor) StartMetricsServer(port int) {
	http.Handle("/metrics", promhttp.Handler())

	// 健康检查端点
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	m.log.Infof("Metrics服务器启动: %s", addr)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			m.log.Errorf("Metrics服务器错误: %v", err)
		}
	}()
}

// StartRuntimeMonitor 启动运行时监控
func (m *Monitor) StartRuntimeMonitor() {
	ticker := time.NewTicker(10 * time.Second)

	go func() {
		for range ticker.C {
			// 更新Goroutine数量
			GoroutineCount.Set(float64(runtime.NumGoroutine()))

			// 更新内存使用
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			MemoryUsage.Set(float64(memStats.Alloc))

			m.log.Debugf("Goroutines: %d, 内存: %.2f MB",
				runtime.NumGoroutine(),
				float64(memStats.Alloc)/1024/1024,
			)
		}
	}()
}
