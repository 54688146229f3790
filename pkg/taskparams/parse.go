// Package taskparams turns the raw Params cell of a task row into a validated
// models.Params and derives the deterministic artifact suffix from it.
// All functions are pure.
package taskparams

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/gridrunner/pkg/models"
)

// ErrInvalidParams is matched by every *ParseError.
var ErrInvalidParams = errors.New("invalid task params")

// Rule identifies which validation rule rejected a params string.
// Rules are applied in declaration order.
type Rule int

const (
	RuleFieldCount Rule = iota + 1
	RuleSubwordsShape
	RuleFieldType
	RuleSubwordsOrder
)

func (r Rule) String() string {
	switch r {
	case RuleFieldCount:
		return "field_count"
	case RuleSubwordsShape:
		return "subwords_shape"
	case RuleFieldType:
		return "field_type"
	case RuleSubwordsOrder:
		return "subwords_order"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// ParseError reports the rule a params string violated. Row is zero when the
// string was parsed outside the context of a task row.
type ParseError struct {
	Rule Rule
	Row  int
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d: params %q: %s: %v", e.Row, e.Raw, e.Rule, e.Err)
	}
	return fmt.Sprintf("params %q: %s: %v", e.Raw, e.Rule, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrInvalidParams }

const (
	fieldSep    = ";"
	subwordsSep = "-"
	fieldCount  = 5
)

// Parse validates raw in the form algo;epochs;min-max;wordngram;neg_sampling.
// It never returns a partially filled Params alongside an error.
func Parse(raw string) (models.Params, error) {
	fail := func(rule Rule, err error) (models.Params, error) {
		return models.Params{}, &ParseError{Rule: rule, Raw: raw, Err: err}
	}

	fields := strings.Split(strings.TrimSpace(raw), fieldSep)
	if len(fields) != fieldCount {
		return fail(RuleFieldCount, fmt.Errorf("expected %d %q-separated fields, got %d", fieldCount, fieldSep, len(fields)))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	bounds := strings.Split(fields[2], subwordsSep)
	if len(bounds) != 2 {
		return fail(RuleSubwordsShape, fmt.Errorf("subwords %q must be min%smax", fields[2], subwordsSep))
	}

	if fields[0] == "" {
		return fail(RuleFieldType, errors.New("algo is empty"))
	}

	numeric := []struct {
		name string
		raw  string
	}{
		{"epochs", fields[1]},
		{"subwords_min", strings.TrimSpace(bounds[0])},
		{"subwords_max", strings.TrimSpace(bounds[1])},
		{"wordngram", fields[3]},
		{"neg_sampling", fields[4]},
	}
	var vals [5]int
	for i, f := range numeric {
		v, err := strconv.Atoi(f.raw)
		if err != nil {
			return fail(RuleFieldType, fmt.Errorf("%s %q is not an integer", f.name, f.raw))
		}
		vals[i] = v
	}

	p := models.Params{
		Algo:        fields[0],
		Epochs:      vals[0],
		SubwordsMin: vals[1],
		SubwordsMax: vals[2],
		WordNgram:   vals[3],
		NegSampling: vals[4],
	}
	if p.SubwordsMin >= p.SubwordsMax {
		return fail(RuleSubwordsOrder, fmt.Errorf("subwords min %d must be less than max %d", p.SubwordsMin, p.SubwordsMax))
	}
	return p, nil
}

// ParseTask parses the Params cell of task and tags any failure with its row.
func ParseTask(task models.Task) (models.Params, error) {
	p, err := Parse(task.Params)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Row = task.Row
		}
		return models.Params{}, err
	}
	return p, nil
}
