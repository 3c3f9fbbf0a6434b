package expressions

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/jmespath/go-jmespath"
)

// Evaluator runs JMESPath lookups against decoded provider JSON. Compiled expressions are
// cached because adapters apply the same paths to every row.
type Evaluator struct {
	compiled sync.Map // expression -> *jmespath.JMESPath
}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) compile(expression string) (*jmespath.JMESPath, error) {
	if cached, ok := e.compiled.Load(expression); ok {
		return cached.(*jmespath.JMESPath), nil
	}
	parsed, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	actual, _ := e.compiled.LoadOrStore(expression, parsed)
	return actual.(*jmespath.JMESPath), nil
}

// Validate reports whether expression compiles.
func (e *Evaluator) Validate(expression string) error {
	_, err := e.compile(expression)
	return err
}

func (e *Evaluator) Evaluate(expression string, data any) (any, error) {
	parsed, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	result, err := parsed.Search(data)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expression, err)
	}
	return result, nil
}

// EvaluateString renders the result as text. Missing values are "".
func (e *Evaluator) EvaluateString(expression string, data any) (string, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return "", err
	}
	return ToString(result), nil
}

// EvaluateFloat reads a number. Providers send many metrics as JSON strings, so numeric
// strings are accepted and missing values are zero.
func (e *Evaluator) EvaluateFloat(expression string, data any) (float64, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return 0, err
	}
	return ToFloat(result)
}

func (e *Evaluator) EvaluateInt(expression string, data any) (int64, error) {
	f, err := e.EvaluateFloat(expression, data)
	return int64(f), err
}

// EvaluateSlice returns a list result as-is, wraps a scalar in a one-element list, and
// returns nil for a missing value.
func (e *Evaluator) EvaluateSlice(expression string, data any) ([]any, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil || result == nil {
		return nil, err
	}
	if list, ok := result.([]any); ok {
		return list, nil
	}
	return []any{result}, nil
}

func ToString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func ToFloat(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if v == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as number: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}
