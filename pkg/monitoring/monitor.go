package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frubric_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "frubric_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// DefinitionSaves 按修改严重程度（0-5）统计定义保存次数
	DefinitionSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frubric_definition_saves_total",
			Help: "Definition saves labelled by change severity",
		},
		[]string{"severity"},
	)

	RegradeFlagged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "frubric_instances_flagged_total",
			Help: "Grading instances moved to NEEDUPDATE after a definition change",
		},
	)

	GradesComputed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frubric_grades_computed_total",
			Help: "Final grades computed, by policy",
		},
		[]string{"policy"},
	)

	TaskRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frubric_task_runs_total",
			Help: "Background maintenance task runs",
		},
		[]string{"task", "result"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(DefinitionSaves)
	prometheus.MustRegister(RegradeFlagged)
	prometheus.MustRegister(GradesComputed)
	prometheus.MustRegister(TaskRuns)
}

func ObserveDefinitionSave(severity int) {
	DefinitionSaves.WithLabelValues(strconv.Itoa(severity)).Inc()
}

func ObserveTask(task string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	TaskRuns.WithLabelValues(task, result).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
