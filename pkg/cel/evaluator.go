package cel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"courier/pkg/models"
)

// Evaluator compiles expressions over events. Compiled programs are cached
// by source text.
type Evaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("event_type", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("message", cel.StringType),
		cel.Variable("level", cel.StringType),
		cel.Variable("reference_id", cel.StringType),
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("count", cel.IntType),
		cel.Variable("date", cel.TimestampType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env, programs: make(map[string]cel.Program)}, nil
}

func (e *Evaluator) ValidateExpression(expression string) error {
	_, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}
	return nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// EvaluateFilter runs a boolean expression against the event.
func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, ev *models.Event) (bool, error) {
	program, err := e.filterProgram(expression)
	if err != nil {
		return false, err
	}

	vars, err := Variables(ev)
	if err != nil {
		return false, err
	}

	result, _, err := program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (e *Evaluator) filterProgram(expression string) (cel.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.mu.Lock()
	e.programs[expression] = program
	e.mu.Unlock()
	return program, nil
}

// Variables flattens an event into the activation the expressions see. Data
// goes through its JSON form so structured values become plain maps.
func Variables(ev *models.Event) (map[string]interface{}, error) {
	data := map[string]interface{}{}
	if len(ev.Data) > 0 {
		body, err := json.Marshal(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event data: %w", err)
		}
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("failed to decode event data: %w", err)
		}
	}

	tags := ev.Tags
	if tags == nil {
		tags = []string{}
	}

	var value float64
	if ev.Value != nil {
		value = *ev.Value
	}

	return map[string]interface{}{
		"event_type":   ev.Type,
		"source":       ev.Source,
		"message":      ev.Message,
		"level":        ev.Level(),
		"reference_id": ev.ReferenceID,
		"tags":         tags,
		"value":        value,
		"count":        int64(ev.Count),
		"date":         ev.Date,
		"data":         data,
	}, nil
}
