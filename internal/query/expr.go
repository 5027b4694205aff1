// Package query provides a small validated expression builder for
// constructing aggregation pipelines. Caller-supplied names (metadata keys,
// breakdown dimensions) are checked before they are lowered into field paths,
// so request parameters can never smuggle operators into a pipeline.
package query

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Expr is a node in the expression tree: a field reference, a literal, or
// an aggregation operator applied to sub-expressions.
type Expr interface {
	// Lower renders the expression into the form the store expects.
	Lower() interface{}
}

type fieldRef struct {
	path []string
}

type literal struct {
	value interface{}
}

type operator struct {
	name string
	args []Expr
}

// Field builds a validated field reference from path segments.
// Each segment must be a plain name: non-empty, no "$", no "." and no NUL.
func Field(segments ...string) (Expr, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("field reference needs at least one segment")
	}
	for _, seg := range segments {
		if err := checkSegment(seg); err != nil {
			return nil, err
		}
	}
	return fieldRef{path: segments}, nil
}

// Literal wraps a constant value
func Literal(v interface{}) Expr {
	return literal{value: v}
}

// Op applies an aggregation operator ("$avg", "$sum", ...) to its arguments
func Op(name string, args ...Expr) Expr {
	return operator{name: name, args: args}
}

func (f fieldRef) Lower() interface{} {
	return "$" + strings.Join(f.path, ".")
}

// Path returns the dotted path without the "$" prefix, for use as a match
// or sort key rather than inside an expression.
func (f fieldRef) Path() string {
	return strings.Join(f.path, ".")
}

func (l literal) Lower() interface{} {
	return l.value
}

func (o operator) Lower() interface{} {
	lowered := make(bson.A, 0, len(o.args))
	for _, arg := range o.args {
		lowered = append(lowered, arg.Lower())
	}
	if len(lowered) == 1 {
		return bson.M{o.name: lowered[0]}
	}
	return bson.M{o.name: lowered}
}

// FieldPath validates the segments and returns the dotted path form
// ("metadata.user_id") used as a document key in match and sort stages.
func FieldPath(segments ...string) (string, error) {
	expr, err := Field(segments...)
	if err != nil {
		return "", err
	}
	return expr.(fieldRef).Path(), nil
}

// ErrInvalidFieldPath is wrapped by every segment validation failure, so
// callers can distinguish bad input from pipeline construction bugs.
var ErrInvalidFieldPath = errors.New("invalid field path")

func checkSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidFieldPath)
	}
	if strings.ContainsAny(seg, "$.\x00") {
		return fmt.Errorf("%w: segment %q", ErrInvalidFieldPath, seg)
	}
	return nil
}
