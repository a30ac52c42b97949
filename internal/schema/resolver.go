// Package schema resolves logical attribute roles to concrete column names by
// name-fragment heuristics, once per dataset.
package schema

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/aoyama-lab/proximity-cli/internal/model"
)

// ColumnType classifies a dataset column for role matching.
type ColumnType string

const (
	TypeNumeric ColumnType = "numeric"
	TypeString  ColumnType = "string"
	TypeDate    ColumnType = "date"
	TypeLogical ColumnType = "logical"
	TypeOther   ColumnType = "other"
)

// Column is one attribute column of a dataset.
type Column struct {
	Name string
	Type ColumnType
}

// FieldSpec describes how to locate the column for one logical role: a
// required substring, the allowed column types, and substrings that
// disqualify a candidate (typically prior derived fields or the join key).
type FieldSpec struct {
	Role      string
	Substring string
	Types     []ColumnType
	Exclude   []string
}

// ResolutionError reports a role that could not be bound. It carries the
// dataset's full column list to aid diagnosis.
type ResolutionError struct {
	Role      string
	Substring string
	Columns   []string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("schema: no column matching %q for role %q; columns: [%s]",
		e.Substring, e.Role, strings.Join(e.Columns, ", "))
}

// Resolve binds each spec to the first matching column in column-list order.
// Multiple candidates are not an error: the first match wins, matching the
// source data conventions where the joined table contributes exactly one
// usable column per role. Extra candidates are logged at debug level.
// Zero candidates for any role fails the whole resolution.
//
// Resolve is a pure function of the column list; the returned binding is
// reused for every row and never re-derived mid-run.
func Resolve(cols []Column, specs []FieldSpec) (model.FieldBinding, error) {
	binding := make(model.FieldBinding, len(specs))

	for _, spec := range specs {
		var matches []string
		for _, col := range cols {
			if matchColumn(col, spec) {
				matches = append(matches, col.Name)
			}
		}

		if len(matches) == 0 {
			return nil, &ResolutionError{
				Role:      spec.Role,
				Substring: spec.Substring,
				Columns:   columnNames(cols),
			}
		}
		if len(matches) > 1 {
			zap.L().Debug("schema: multiple candidate columns, first wins",
				zap.String("role", spec.Role),
				zap.Strings("candidates", matches),
			)
		}
		binding[spec.Role] = matches[0]
	}

	return binding, nil
}

func matchColumn(col Column, spec FieldSpec) bool {
	if !strings.Contains(col.Name, spec.Substring) {
		return false
	}
	for _, ex := range spec.Exclude {
		if ex != "" && strings.Contains(col.Name, ex) {
			return false
		}
	}
	if len(spec.Types) == 0 {
		return col.Type == TypeNumeric
	}
	for _, t := range spec.Types {
		if col.Type == t {
			return true
		}
	}
	return false
}

func columnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
