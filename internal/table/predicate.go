package table

import (
	"errors"
	"fmt"
	"strings"
)

// Predicate selects the rows of a RawTable that are kept.  Bind
// validates the predicate against the table's columns and returns the
// row matcher.
type Predicate interface {
	Bind(rt *RawTable) (func(row []Cell) bool, error)
	String() string
}

// Condition is a single equality test on a named column.
type Condition struct {
	Column   string
	Value    string
	FoldCase bool // compare case-insensitively
	Optional bool // if the column is absent, the condition holds
}

// String returns the condition in the syntax accepted by ParseCondition.
func (c Condition) String() string {
	op := "=="
	if c.FoldCase {
		op = "=~"
	}
	s := c.Column + op + c.Value
	if c.Optional {
		s = "?" + s
	}
	return s
}

// match reports whether the condition holds for value.
func (c Condition) match(value Cell) bool {
	if c.FoldCase {
		return strings.ToLower(value.String()) == strings.ToLower(c.Value)
	}
	return value.String() == c.Value
}

// All is a predicate that holds when all of its conditions hold.  An
// empty All keeps every row.
type All []Condition

// Bind implements Predicate.
func (a All) Bind(rt *RawTable) (func(row []Cell) bool, error) {
	type bound struct {
		cond Condition
		idx  int
	}
	conds := make([]bound, 0, len(a))
	for _, c := range a {
		idx := rt.Index(c.Column)
		if idx == -1 {
			if c.Optional {
				verbose("column %q absent, skipping condition %v", c.Column, c)
				continue
			}
			return nil, fmt.Errorf("%w: %q (predicate)", ErrMissingColumn, c.Column)
		}
		conds = append(conds, bound{cond: c, idx: idx})
	}
	return func(row []Cell) bool {
		for _, b := range conds {
			if !b.cond.match(rt.Cell(row, b.idx)) {
				return false
			}
		}
		return true
	}, nil
}

// String implements Predicate.
func (a All) String() string {
	if len(a) == 0 {
		return "<all rows>"
	}
	s := make([]string, len(a))
	for i, c := range a {
		s[i] = c.String()
	}
	return strings.Join(s, " && ")
}

var (
	// Presets are the named predicates that can be selected by name.
	Presets = map[string]All{
		"soc5": {
			{Column: "Receiver type", Value: "station", FoldCase: true},
			{Column: "Current Station", Value: "soc 5", FoldCase: true},
		},
		"status-success": {
			{Column: "Status", Value: "Success", Optional: true},
		},
		"all": {},
	}

	ErrCondition = errors.New("invalid condition")
	ErrPreset    = errors.New("unknown predicate preset")
)

// ParseCondition parses a condition in one of these forms:
//
//	Column==Value   exact match
//	Column=~Value   case-insensitive match
//
// A leading '?' makes the condition optional.  Column names are trimmed;
// values are taken verbatim.
func ParseCondition(s string) (Condition, error) {
	c := Condition{}
	if strings.HasPrefix(s, "?") {
		c.Optional = true
		s = s[1:]
	}
	idx := strings.Index(s, "=")
	if idx < 1 || idx+1 >= len(s) {
		return Condition{}, fmt.Errorf("%q: %w", s, ErrCondition)
	}
	switch s[idx+1] {
	case '=':
	case '~':
		c.FoldCase = true
	default:
		return Condition{}, fmt.Errorf("%q: %w", s, ErrCondition)
	}
	c.Column = strings.TrimSpace(s[:idx])
	c.Value = s[idx+2:]
	if c.Column == "" {
		return Condition{}, fmt.Errorf("%q: %w", s, ErrCondition)
	}
	return c, nil
}

// NewPredicate returns the named preset with the given conditions
// appended.  An empty preset name means no preset.
func NewPredicate(preset string, conditions []string) (All, error) {
	pred := All{}
	if preset != "" {
		p, ok := Presets[preset]
		if !ok {
			return nil, fmt.Errorf("%q: %w", preset, ErrPreset)
		}
		pred = append(pred, p...)
	}
	for _, s := range conditions {
		c, err := ParseCondition(s)
		if err != nil {
			return nil, err
		}
		pred = append(pred, c)
	}
	return pred, nil
}
