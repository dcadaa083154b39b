package filtering

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"courier/internal/constants"
	"courier/internal/core"
	"courier/pkg/cel"
)

// ExpressionExclusion cancels events for which any exclusion expression
// evaluates to true. Expressions come from the client configuration and
// from @@exclude:<name> server settings; a setting replaces a configured
// expression of the same name. Expressions that fail to compile or evaluate
// are logged and skipped.
type ExpressionExclusion struct {
	evaluator *cel.Evaluator
}

func NewExpressionExclusion() (*ExpressionExclusion, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	return &ExpressionExclusion{evaluator: evaluator}, nil
}

func (*ExpressionExclusion) Name() string  { return "ExpressionExclusionPlugin" }
func (*ExpressionExclusion) Priority() int { return ExpressionExclusionPriority }

func (p *ExpressionExclusion) Run(ctx context.Context, pc *core.PluginContext) error {
	expressions := collectExpressions(pc.Config)
	if len(expressions) == 0 {
		return nil
	}

	names := make([]string, 0, len(expressions))
	for name := range expressions {
		names = append(names, name)
	}
	sort.Strings(names)

	log := pc.Log()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}

		excluded, err := p.evaluator.EvaluateFilter(ctx, expressions[name], pc.Event)
		if err != nil {
			log.WarnwCtx(ctx, "Exclusion expression failed, ignoring it",
				"expression", name,
				"error", err,
			)
			continue
		}
		if excluded {
			log.InfowCtx(ctx, "Cancelling event excluded by expression", "expression", name)
			pc.Cancelled = true
			return nil
		}
	}
	return nil
}

func collectExpressions(cfg *core.Configuration) map[string]string {
	out := cfg.ExcludeExpressions()
	for key, value := range cfg.Settings() {
		if !strings.HasPrefix(key, constants.SettingExcludeExpression) {
			continue
		}
		name := strings.TrimPrefix(key, constants.SettingExcludeExpression)
		if name == "" || strings.TrimSpace(value) == "" {
			continue
		}
		out[name] = value
	}
	return out
}
