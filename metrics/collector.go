package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gocrud/ioc/core"
)

// ComponentName 指标收集器的组件名
const ComponentName = "metricsCollector"

// Options 收集器配置
type Options struct {
	Namespace        string `json:"namespace" yaml:"namespace"`
	Subsystem        string `json:"subsystem" yaml:"subsystem"`
	CollectGoMetrics bool   `json:"collectGoMetrics" yaml:"collectGoMetrics"`
	CollectProcess   bool   `json:"collectProcess" yaml:"collectProcess"`
}

// DefaultOptions 默认命名空间 ioc，子系统 container
func DefaultOptions() Options {
	return Options{Namespace: "ioc", Subsystem: "container"}
}

// Collector 容器指标：组件创建次数、失败次数、耗时，以及销毁情况
type Collector struct {
	registry *prometheus.Registry

	created          *prometheus.CounterVec
	creationDuration *prometheus.HistogramVec
	destroyed        *prometheus.CounterVec
	destroyDuration  prometheus.Histogram
}

// NewCollector 创建收集器，使用独立的 Registry
func NewCollector(opts Options) *Collector {
	registry := prometheus.NewRegistry()
	if opts.CollectGoMetrics {
		registry.MustRegister(prometheus.NewGoCollector())
	}
	if opts.CollectProcess {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	c := &Collector{
		registry: registry,
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "components_created_total",
			Help:      "Number of component creations by scope and result.",
		}, []string{"scope", "result"}),
		creationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "component_creation_seconds",
			Help:      "Time spent creating a component, including its dependencies.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"scope"}),
		destroyed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "components_destroyed_total",
			Help:      "Number of component destructions by result.",
		}, []string{"result"}),
		destroyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: opts.Namespace,
			Subsystem: opts.Subsystem,
			Name:      "component_destroy_seconds",
			Help:      "Time spent running destroy callbacks.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
	}
	registry.MustRegister(c.created, c.creationDuration, c.destroyed, c.destroyDuration)
	return c
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCreation 可作为 di.CreationHook
func (c *Collector) ObserveCreation(_ string, scope string, duration time.Duration, err error) {
	c.created.WithLabelValues(scope, result(err)).Inc()
	c.creationDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

// ObserveDestroy 可作为 di.DestroyHook
func (c *Collector) ObserveDestroy(_ string, duration time.Duration, err error) {
	c.destroyed.WithLabelValues(result(err)).Inc()
	c.destroyDuration.Observe(duration.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler 暴露指标的 HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Enable 创建收集器，挂到容器的创建/销毁观察者上并注册为组件
func Enable(opts ...Options) core.Option {
	return func(rt *core.Runtime) error {
		o := DefaultOptions()
		if len(opts) > 0 {
			o = opts[0]
		}
		collector := NewCollector(o)
		rt.Container.AddCreationObserver(collector.ObserveCreation)
		rt.Container.AddDestroyObserver(collector.ObserveDestroy)
		return rt.Container.RegisterSingleton(ComponentName, collector)
	}
}
