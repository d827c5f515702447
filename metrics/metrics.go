package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type VendorMetrics struct {
	RetryCount      *prometheus.CounterVec
	FailureCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

type PipelineMetrics struct {
	HTTPRequestsInFlight prometheus.Gauge

	TaskSubmissionCount *prometheus.CounterVec
	TaskTerminalCount   *prometheus.CounterVec
	StageDurationSec    *prometheus.SummaryVec
	QueueDepth          prometheus.Gauge
	RunningTasks        prometheus.Gauge

	SegmentsTranscribed prometheus.Counter
	STTConsecutiveAbort prometheus.Counter

	STTClient VendorMetrics
	LLMClient VendorMetrics
}

func NewMetrics() *PipelineMetrics {
	m := &PipelineMetrics{
		HTTPRequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "The number of HTTP requests currently being served",
		}),
		TaskSubmissionCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "task_submission_count",
			Help: "The total number of task submissions, broken up by source kind",
		}, []string{"source"}),
		TaskTerminalCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "task_terminal_count",
			Help: "The total number of tasks reaching a terminal status",
		}, []string{"status"}),
		StageDurationSec: promauto.NewSummaryVec(prometheus.SummaryOpts{
			Name: "task_stage_duration_seconds",
			Help: "The time each pipeline stage takes, broken up by stage and success",
		}, []string{"stage", "success"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "task_queue_depth",
			Help: "The number of tasks waiting for a worker slot",
		}),
		RunningTasks: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "task_running_count",
			Help: "The number of tasks currently executing",
		}),
		SegmentsTranscribed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_segments_transcribed_total",
			Help: "The total number of audio segments sent through speech-to-text",
		}),
		STTConsecutiveAbort: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_consecutive_failure_aborts_total",
			Help: "The total number of tasks aborted by the consecutive STT failure limit",
		}),

		STTClient: VendorMetrics{
			RetryCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "stt_client_retry_count",
				Help: "The number of retried speech-to-text requests",
			}, []string{"host"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "stt_client_failure_count",
				Help: "The total number of failed speech-to-text requests",
			}, []string{"host", "kind"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "stt_client_request_duration",
				Help:    "Time taken by speech-to-text requests",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"host"}),
		},
		LLMClient: VendorMetrics{
			RetryCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "llm_client_retry_count",
				Help: "The number of retried LLM requests",
			}, []string{"host"}),
			FailureCount: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "llm_client_failure_count",
				Help: "The total number of failed LLM requests",
			}, []string{"host", "kind"}),
			RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "llm_client_request_duration",
				Help:    "Time taken by LLM requests, broken up by operation",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			}, []string{"host", "operation"}),
		},
	}

	return m
}

var Metrics = NewMetrics()
