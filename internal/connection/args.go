package connection

import (
	"fmt"
	"math"
	"strings"
)

// Args are the pagination arguments of one connection field.
type Args struct {
	First  *int
	After  *string
	Last   *int
	Before *string
}

// Forward reports whether first/after were supplied.
func (a Args) Forward() bool {
	return a.First != nil || a.After != nil
}

// Backward reports whether last/before were supplied.
func (a Args) Backward() bool {
	return a.Last != nil || a.Before != nil
}

// ValidationError reports a malformed pagination argument.
type ValidationError struct {
	Argument string
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Argument, e.Message)
}

// AmbiguousPaginationArgsError reports forward and backward arguments supplied together.
type AmbiguousPaginationArgsError struct {
	Forward  []string
	Backward []string
}

func (e *AmbiguousPaginationArgsError) Error() string {
	return fmt.Sprintf("cannot combine forward pagination (%s) with backward pagination (%s)",
		strings.Join(e.Forward, ", "), strings.Join(e.Backward, ", "))
}

// ParseArgs reads first/after/last/before from resolver arguments.
func ParseArgs(raw map[string]interface{}) (Args, error) {
	var args Args
	var err error

	if args.First, err = countArg(raw, "first"); err != nil {
		return Args{}, err
	}
	if args.Last, err = countArg(raw, "last"); err != nil {
		return Args{}, err
	}
	if args.After, err = cursorArg(raw, "after"); err != nil {
		return Args{}, err
	}
	if args.Before, err = cursorArg(raw, "before"); err != nil {
		return Args{}, err
	}

	if args.Forward() && args.Backward() {
		amb := &AmbiguousPaginationArgsError{}
		if args.First != nil {
			amb.Forward = append(amb.Forward, "first")
		}
		if args.After != nil {
			amb.Forward = append(amb.Forward, "after")
		}
		if args.Last != nil {
			amb.Backward = append(amb.Backward, "last")
		}
		if args.Before != nil {
			amb.Backward = append(amb.Backward, "before")
		}
		return Args{}, amb
	}
	return args, nil
}

func countArg(raw map[string]interface{}, name string) (*int, error) {
	value, ok := raw[name]
	if !ok || value == nil {
		return nil, nil
	}
	var n int
	switch v := value.(type) {
	case int:
		n = v
	case int32:
		n = int(v)
	case int64:
		if v > math.MaxInt32 || v < math.MinInt32 {
			return nil, &ValidationError{Argument: name, Message: "out of range"}
		}
		n = int(v)
	case float64:
		if v != math.Trunc(v) {
			return nil, &ValidationError{Argument: name, Message: "must be an integer"}
		}
		n = int(v)
	default:
		return nil, &ValidationError{Argument: name, Message: fmt.Sprintf("unexpected type %T", value)}
	}
	if n < 0 {
		return nil, &ValidationError{Argument: name, Message: "must be non-negative"}
	}
	return &n, nil
}

func cursorArg(raw map[string]interface{}, name string) (*string, error) {
	value, ok := raw[name]
	if !ok || value == nil {
		return nil, nil
	}
	s, ok := value.(string)
	if !ok {
		return nil, &ValidationError{Argument: name, Message: fmt.Sprintf("unexpected type %T", value)}
	}
	return &s, nil
}
