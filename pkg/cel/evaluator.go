package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"pdlbus/internal/notification"
)

// Evaluator compiles expressions over notification envelopes. Expressions
// see these variables:
//
//	urn         string     product id URN
//	source      string
//	productType string
//	code        string
//	updateTime  timestamp
//	expires     timestamp
//	url         string     product URL
//	tracker     string     tracker URL
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("urn", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("productType", cel.StringType),
		cel.Variable("code", cel.StringType),
		cel.Variable("updateTime", cel.TimestampType),
		cel.Variable("expires", cel.TimestampType),
		cel.Variable("url", cel.StringType),
		cel.Variable("tracker", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compileFilter(expression)
	return err
}

func (e *Evaluator) compileFilter(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}
	return ast, nil
}

// Filter is a compiled boolean expression, safe for concurrent use.
type Filter struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	ast, err := e.compileFilter(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{expression: expression, program: program}, nil
}

func (f *Filter) String() string {
	return f.expression
}

func (f *Filter) Match(ctx context.Context, env *notification.Envelope) (bool, error) {
	result, _, err := f.program.ContextEval(ctx, EnvelopeVars(env))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}
	return boolVal, nil
}

// EvaluateFilter compiles and runs expression once.
func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, env *notification.Envelope) (bool, error) {
	f, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}
	return f.Match(ctx, env)
}

func EnvelopeVars(env *notification.Envelope) map[string]interface{} {
	vars := map[string]interface{}{
		"urn":         env.ID.String(),
		"source":      env.ID.Source,
		"productType": env.ID.Type,
		"code":        env.ID.Code,
		"updateTime":  env.ID.UpdateTime,
		"expires":     env.Expires,
		"url":         "",
		"tracker":     "",
	}
	if env.ProductURL != nil {
		vars["url"] = env.ProductURL.String()
	}
	if env.TrackerURL != nil {
		vars["tracker"] = env.TrackerURL.String()
	}
	return vars
}
