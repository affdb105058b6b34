package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按方法、路由、状态码统计请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todo_http_requests_total",
		Help: "Total HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration 请求耗时分布。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "todo_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// RemindersProcessedTotal 已标记处理的提醒数。
	RemindersProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todo_reminders_processed_total",
		Help: "Reminders notified and marked inactive.",
	})

	// RemindersFailedTotal 处理失败（通知或标记）的提醒数。
	RemindersFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todo_reminders_failed_total",
		Help: "Reminders that failed during a batch, by stage.",
	}, []string{"stage"})

	// RemindersSkippedTotal 因去重而跳过发送的提醒数。
	RemindersSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todo_reminders_skipped_total",
		Help: "Reminders whose notification was already sent.",
	})

	// ReminderBatchDuration 单次批处理耗时。
	ReminderBatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "todo_reminder_batch_duration_seconds",
		Help:    "Duration of one reminder batch run.",
		Buckets: prometheus.DefBuckets,
	})

	// AttachmentsUploadedTotal 上传成功的附件数。
	AttachmentsUploadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todo_attachments_uploaded_total",
		Help: "Attachments stored successfully.",
	})

	// AttachmentsRejectedTotal 校验未通过的上传，按原因统计。
	AttachmentsRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todo_attachments_rejected_total",
		Help: "Uploads rejected by validation, by reason.",
	}, []string{"reason"})

	// AttachmentBytesTotal 累计写入的附件字节数。
	AttachmentBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "todo_attachment_bytes_total",
		Help: "Bytes written to attachment storage.",
	})

	// RateLimitRejectedTotal 被限流拒绝的请求数。
	RateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "todo_rate_limit_rejected_total",
		Help: "Requests rejected by the rate limiter, by route.",
	}, []string{"route"})

	// NotifyQueueDepth 通知队列中待处理的任务数。
	NotifyQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "todo_notify_queue_depth",
		Help: "Pending jobs in the notification pool.",
	})

	// NotifyWorkers 通知 worker 数量。
	NotifyWorkers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "todo_notify_workers",
		Help: "Configured notification workers.",
	})
)

var registerOnce sync.Once

// InitMetrics 注册所有指标（可重复调用，只注册一次）。
func InitMetrics(notifyWorkers int) {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			RemindersProcessedTotal,
			RemindersFailedTotal,
			RemindersSkippedTotal,
			ReminderBatchDuration,
			AttachmentsUploadedTotal,
			AttachmentsRejectedTotal,
			AttachmentBytesTotal,
			RateLimitRejectedTotal,
			NotifyQueueDepth,
			NotifyWorkers,
		)
	})
	NotifyWorkers.Set(float64(notifyWorkers))
}
