package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	stageDuration   *prom.HistogramVec
	buildDuration   prom.Histogram
	stageResults    *prom.CounterVec
	buildOutcome    *prom.CounterVec
	chapterDuration *prom.HistogramVec
	chapterResults  *prom.CounterVec
	blocksExecuted  prom.Counter
	previewReloads  prom.Counter
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "bookbuilder",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual build stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "bookbuilder",
			Name:      "build_duration_seconds",
			Help:      "Total build duration per target",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"})
		pr.chapterDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "bookbuilder",
			Name:      "chapter_duration_seconds",
			Help:      "Duration of individual chapter normalize+weave jobs",
			Buckets:   prom.DefBuckets,
		}, []string{"chapter", "result"})
		pr.chapterResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "chapter_results_total",
			Help:      "Chapter jobs by rebuilt/fresh",
		}, []string{"result"})
		pr.blocksExecuted = prom.NewCounter(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "blocks_executed_total",
			Help:      "Executable code blocks evaluated during weaving",
		})
		pr.previewReloads = prom.NewCounter(prom.CounterOpts{
			Namespace: "bookbuilder",
			Name:      "preview_reloads_total",
			Help:      "Successful preview rebuilds broadcast to clients",
		})
		reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageResults, pr.buildOutcome,
			pr.chapterDuration, pr.chapterResults, pr.blocksExecuted, pr.previewReloads)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveChapterDuration(chapter string, d time.Duration, rebuilt bool) {
	if p == nil || p.chapterDuration == nil {
		return
	}
	p.chapterDuration.WithLabelValues(chapter, chapterResult(rebuilt)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncChapterResult(rebuilt bool) {
	if p == nil || p.chapterResults == nil {
		return
	}
	p.chapterResults.WithLabelValues(chapterResult(rebuilt)).Inc()
}

func (p *PrometheusRecorder) AddBlocksExecuted(n int) {
	if p == nil || p.blocksExecuted == nil || n <= 0 {
		return
	}
	p.blocksExecuted.Add(float64(n))
}

func (p *PrometheusRecorder) IncPreviewReload() {
	if p == nil || p.previewReloads == nil {
		return
	}
	p.previewReloads.Inc()
}

func chapterResult(rebuilt bool) string {
	if rebuilt {
		return "rebuilt"
	}
	return "fresh"
}
