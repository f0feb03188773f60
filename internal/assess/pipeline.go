package assess

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shadowid-platform/saqr/internal/domain"
	"github.com/shadowid-platform/saqr/internal/features"
	"github.com/shadowid-platform/saqr/internal/model"
)

// Failure codes attached to degraded results.
const (
	CodeNone     = ""
	CodePanic    = "pipeline_panic"
	CodeCanceled = "context_canceled"
)

// Result is the typed outcome of one pipeline run. Exactly one of the
// two shapes holds: Err == nil and Assessment is the model verdict, or
// Err != nil and Assessment is unset. Degradation to the fixed Low
// fallback is the caller's explicit step, not something that happens
// silently inside the run.
type Result struct {
	Assessment domain.RiskAssessment
	Err        error
	Code       string
}

// Pipeline engineers features and runs the model cascade. Safe for
// concurrent use.
type Pipeline struct {
	cascade *model.Cascade
	builder *features.Builder
	logger  *slog.Logger
}

// NewPipeline wires the pipeline. A nil builder gets a real-clock
// default; a nil logger gets slog.Default().
func NewPipeline(cascade *model.Cascade, builder *features.Builder, logger *slog.Logger) *Pipeline {
	if builder == nil {
		builder = features.NewBuilder(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cascade: cascade, builder: builder, logger: logger}
}

// Run executes feature engineering and the cascade for one event. A
// panic anywhere inside is recovered into an error result.
func (p *Pipeline) Run(ctx context.Context, ev *domain.ScanEvent) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("pipeline panic: %v", r), Code: CodePanic}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Result{Err: err, Code: CodeCanceled}
	}

	vec := p.builder.Build(ev, p.cascade.FeatureNames())
	label, probs := p.cascade.Predict(vec)

	return Result{Assessment: Score(label, probs)}
}

// Assess runs the pipeline and degrades any failure to the fixed Low
// fallback verdict. The returned code is empty on the happy path.
func (p *Pipeline) Assess(ctx context.Context, ev *domain.ScanEvent) (domain.RiskAssessment, string) {
	res := p.Run(ctx, ev)
	if res.Err != nil {
		p.logger.Warn("assessment degraded to fallback",
			"error", res.Err,
			"code", res.Code,
			"national_id", ev.User.NationalID)
		return domain.FallbackAssessment(), res.Code
	}
	return res.Assessment, CodeNone
}
