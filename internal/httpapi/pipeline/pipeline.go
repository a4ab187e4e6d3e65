package pipeline

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/otherjamesbrown/caseflow-api/internal/metrics"
)

// Stage is the canonical pipeline layer: inspect the request context, enrich
// it, and either continue (nil) or stop with a rejection. Every security
// layer and the validation step implement this one signature.
type Stage struct {
	Name string
	Run  func(rc *Ctx) *Rejection
}

// Pipeline is an ordered stage list around an inner handler. Ordering is
// data: the slice is assembled once by a preset constructor and evaluated by
// ServeHTTP, never by nesting closures.
type Pipeline struct {
	preset  string
	stages  []Stage
	handler http.HandlerFunc
	logger  zerolog.Logger
}

// newPipeline builds a pipeline. Presets are the only constructors.
func newPipeline(preset string, logger zerolog.Logger, stages []Stage, handler http.HandlerFunc) *Pipeline {
	return &Pipeline{
		preset:  preset,
		stages:  stages,
		handler: handler,
		logger:  logger.With().Str("component", "pipeline").Str("preset", preset).Logger(),
	}
}

// Stages exposes the ordered stage names so composition is assertable in tests.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// ServeHTTP evaluates the stages in order and invokes the inner handler when
// all of them pass. It is also the outermost error boundary: panics and
// rejections are converted into the stable envelope here, with request
// metadata logged and generic messages returned.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rc := &Ctx{W: w, R: r, preset: p.preset}

	defer func() {
		if rec := recover(); rec != nil {
			p.logEvent(rc, zerolog.ErrorLevel).
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			WriteError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
		}
		metrics.RequestDuration.WithLabelValues(p.preset).Observe(time.Since(start).Seconds())
	}()

	for _, stage := range p.stages {
		rej := stage.Run(rc)
		if rej == nil {
			continue
		}
		p.rejected(rc, stage.Name, rej)
		return
	}

	p.handler(w, r.WithContext(withCtx(r.Context(), rc)))
}

func (p *Pipeline) rejected(rc *Ctx, stage string, rej *Rejection) {
	evt := p.logEvent(rc, levelFor(rej.Status)).
		Str("stage", stage).
		Int("status", rej.Status).
		Str("code", rej.Code)
	if rej.Err != nil {
		evt = evt.Err(rej.Err)
	}
	evt.Msg("request rejected")

	if rej.Reason != "" {
		metrics.RecordGuardDenial(rej.Reason)
	}
	WriteError(rc.W, rej.Status, rej.Code, rej.Message)
}

// logEvent attaches the request metadata every log line carries: method,
// path, query, principal, and org context.
func (p *Pipeline) logEvent(rc *Ctx, level zerolog.Level) *zerolog.Event {
	evt := p.logger.WithLevel(level).
		Str("method", rc.R.Method).
		Str("path", rc.R.URL.Path)
	if q := rc.R.URL.RawQuery; q != "" {
		evt = evt.Str("query", q)
	}
	if rc.Principal != nil {
		evt = evt.Str("principal_id", rc.Principal.ID.String()).
			Str("principal_type", string(rc.Principal.Type))
	}
	if rc.ActiveOrg != uuidNil {
		evt = evt.Str("active_org", rc.ActiveOrg.String())
	}
	return evt
}

func levelFor(status int) zerolog.Level {
	if status >= http.StatusInternalServerError {
		return zerolog.ErrorLevel
	}
	return zerolog.WarnLevel
}
