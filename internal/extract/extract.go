// Package extract sequences pattern detection against a text blob with an
// optional higher-cost fallback extractor and returns one best-effort result
// with provenance metadata.
//
// The orchestrator is the single entry point callers use. The fallback is
// invoked only when heuristic confidence is low, is bounded by a timeout and
// a rate limit, and its failures never propagate: the worst case is that a
// chart that could have appeared does not.
package extract

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/chatviz/chatviz/internal/charts"
	"github.com/chatviz/chatviz/internal/log"
)

// Method records how a result was obtained.
type Method string

// Extraction methods.
const (
	MethodPattern Method = "pattern"
	MethodLLM     Method = "llm"
	MethodNone    Method = "none"
)

// Result is the return contract of Extract, carrying provenance for logging
// and telemetry.
type Result struct {
	Pattern      *charts.DataPattern
	Method       Method
	FallbackUsed bool
	Duration     time.Duration
}

// Fallback is the boundary to an external semantic extractor. It accepts raw
// text and returns a candidate pattern; its own protocol is an external
// collaborator's concern.
type Fallback interface {
	Extract(ctx context.Context, text string) (charts.DataPattern, error)
}

// Config holds orchestrator settings.
type Config struct {
	// EnableFallback switches escalation to the semantic extractor on.
	// Default off, for cost control.
	EnableFallback bool

	// ConfidenceFloor below which escalation is considered. Default 0.75.
	ConfidenceFloor float64

	// FallbackTimeout bounds one fallback call. Default 15s.
	FallbackTimeout time.Duration

	// FallbackRate and FallbackBurst rate-limit fallback calls across the
	// orchestrator's lifetime. Defaults: 1 call/s, burst 2.
	FallbackRate  rate.Limit
	FallbackBurst int
}

func (c Config) withDefaults() Config {
	if c.ConfidenceFloor == 0 {
		c.ConfidenceFloor = 0.75
	}
	if c.FallbackTimeout == 0 {
		c.FallbackTimeout = 15 * time.Second
	}
	if c.FallbackRate == 0 {
		c.FallbackRate = rate.Limit(1)
	}
	if c.FallbackBurst == 0 {
		c.FallbackBurst = 2
	}
	return c
}

// Orchestrator sequences the detector and the optional fallback extractor.
// Safe for concurrent use: the detector is pure and the limiter is
// internally synchronized.
type Orchestrator struct {
	detector *charts.Detector
	fallback Fallback
	cfg      Config
	limiter  *rate.Limiter
	logger   log.Logger
	tracer   trace.Tracer
}

// New creates an Orchestrator. fallback may be nil, which forces
// pattern-only extraction regardless of EnableFallback.
func New(detector *charts.Detector, fallback Fallback, cfg Config, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Orchestrator{
		detector: detector,
		fallback: fallback,
		cfg:      cfg,
		limiter:  rate.NewLimiter(cfg.FallbackRate, cfg.FallbackBurst),
		logger:   logger,
		tracer:   otel.Tracer("chatviz/extract"),
	}
}

// Extract returns the best-effort pattern for text. Cheap pattern detection
// runs first; the fallback is consulted only when detection confidence is
// below the floor and fallback extraction is enabled. Fallback failures
// degrade to the pattern result and are never returned as errors.
func (o *Orchestrator) Extract(ctx context.Context, text string) Result {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "extract.Extract")
	defer span.End()

	best := o.bestPattern(text)
	if best != nil && best.Confidence >= o.cfg.ConfidenceFloor {
		return o.finish(span, Result{Pattern: best, Method: MethodPattern}, start)
	}

	if !o.cfg.EnableFallback || o.fallback == nil {
		if best != nil {
			return o.finish(span, Result{Pattern: best, Method: MethodPattern}, start)
		}
		return o.finish(span, Result{Method: MethodNone}, start)
	}

	if !o.limiter.Allow() {
		o.logger.Debug("fallback extraction rate limited")
		if best != nil {
			return o.finish(span, Result{Pattern: best, Method: MethodPattern}, start)
		}
		return o.finish(span, Result{Method: MethodNone}, start)
	}

	fctx, cancel := context.WithTimeout(ctx, o.cfg.FallbackTimeout)
	defer cancel()

	fp, err := o.fallback.Extract(fctx, text)
	if err != nil {
		o.logger.Warn("fallback extraction failed", "error", err)
		if best != nil {
			return o.finish(span, Result{Pattern: best, Method: MethodPattern, FallbackUsed: true}, start)
		}
		return o.finish(span, Result{Method: MethodNone, FallbackUsed: true}, start)
	}

	if best == nil || fp.Confidence >= best.Confidence {
		return o.finish(span, Result{Pattern: &fp, Method: MethodLLM, FallbackUsed: true}, start)
	}
	return o.finish(span, Result{Pattern: best, Method: MethodPattern, FallbackUsed: true}, start)
}

// Charts runs detection over a completed turn's text and transforms every
// surfaced pattern into its chart shape. Patterns that cannot be transformed
// are skipped; when detection surfaces nothing and the fallback is enabled,
// one escalated extraction is attempted.
func (o *Orchestrator) Charts(ctx context.Context, text string, mapping *charts.FieldMapping) []charts.ChartData {
	patterns := o.detector.Detect(text)
	if len(patterns) == 0 {
		res := o.Extract(ctx, text)
		if res.Pattern != nil && res.Pattern.Confidence >= o.cfg.ConfidenceFloor {
			patterns = []charts.DataPattern{*res.Pattern}
		}
	}

	var out []charts.ChartData
	for _, p := range patterns {
		chart, err := charts.Transform(p, mapping)
		if err != nil {
			// Nothing to render for this one candidate; the rest of the
			// turn is unaffected.
			o.logger.Debug("pattern not transformable", "type", p.Type, "error", err)
			continue
		}
		out = append(out, chart)
	}
	return out
}

func (o *Orchestrator) bestPattern(text string) *charts.DataPattern {
	patterns := o.detector.DetectAll(text)
	if len(patterns) == 0 {
		return nil
	}
	return &patterns[0]
}

func (o *Orchestrator) finish(span trace.Span, r Result, start time.Time) Result {
	r.Duration = time.Since(start)
	confidence := 0.0
	if r.Pattern != nil {
		confidence = r.Pattern.Confidence
	}
	span.SetAttributes(
		attribute.String("extract.method", string(r.Method)),
		attribute.Bool("extract.fallback_used", r.FallbackUsed),
		attribute.Float64("extract.confidence", confidence),
	)
	o.logger.Debug("extraction finished",
		"method", r.Method,
		"fallback_used", r.FallbackUsed,
		"confidence", confidence,
		"duration", r.Duration,
	)
	return r
}
