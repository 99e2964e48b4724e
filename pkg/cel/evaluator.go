package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"filterchain/pkg/models"
)

// Evaluator compiles spam rules written against a filter message. Rules see
// the message fields as top-level variables and the customer record as a
// map.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("message_id", cel.StringType),
		cel.Variable("message_type", cel.IntType),
		cel.Variable("source", cel.StringType),
		cel.Variable("destination", cel.StringType),
		cel.Variable("callback", cel.StringType),
		cel.Variable("subject", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("media_count", cel.IntType),
		cel.Variable("customer", cel.MapType(cel.StringType, cel.DynType)),
		ext.Strings(),
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
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return nil
}

// CompileFilter returns a program for a bool expression so that callers can
// evaluate it many times.
func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
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

	return program, nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, expression string, msg *models.FilterMessage) (bool, error) {
	program, err := e.CompileFilter(expression)
	if err != nil {
		return false, err
	}
	return Run(ctx, program, msg)
}

// Run evaluates a compiled filter against msg.
func Run(ctx context.Context, program cel.Program, msg *models.FilterMessage) (bool, error) {
	result, _, err := program.ContextEval(ctx, Activation(msg))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func Activation(msg *models.FilterMessage) map[string]interface{} {
	info := msg.MessageInfo
	return map[string]interface{}{
		"message_id":   info.MessageID,
		"message_type": int64(info.MessageType),
		"source":       info.SourceMdn,
		"destination":  info.DestinationMdn,
		"callback":     info.CallbackNumber,
		"subject":      info.Subject,
		"content":      info.Content,
		"media_count":  int64(len(info.MediaContents)),
		"customer":     customerToMap(msg.CustomerInfo),
	}
}

func customerToMap(c models.CustomerInfo) map[string]interface{} {
	return map[string]interface{}{
		"customer_id":  c.CustomerID,
		"mdn":          c.Mdn,
		"service_type": int64(c.ServiceType),
		"spam_block":   int64(c.SpamBlock),
		"trace_flag":   int64(c.TraceFlag),
	}
}
