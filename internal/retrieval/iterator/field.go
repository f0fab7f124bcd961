package iterator

import (
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// Comparison operators over typed field values.
const (
	CompareGreater = "greater"
	CompareLess    = "less"
	CompareBetween = "between"
	CompareEquals  = "equals"
)

// FieldComparison holds for documents whose field value satisfies the
// comparison. Numeric formats compare as float64, dates as epoch
// milliseconds, strings lexically and booleans by equality only.
type FieldComparison struct {
	transform
	data   DataIterator
	op     string
	format string
	lo, hi any
}

// NewFieldComparison parses the bound(s) for format. between takes both
// bounds inclusively; the other operators take only lo.
func NewFieldComparison(op, format, lo, hi string, child DataIterator) (*FieldComparison, error) {
	it := &FieldComparison{data: child, op: op, format: format}
	it.transform = newTransform(it, child)
	var err error
	switch op {
	case CompareGreater, CompareLess, CompareEquals:
		it.lo, err = parseBound(format, lo)
	case CompareBetween:
		if it.lo, err = parseBound(format, lo); err == nil {
			it.hi, err = parseBound(format, hi)
		}
	default:
		return nil, fmt.Errorf("%w: unknown comparison %q", apperrors.ErrBadOperator, op)
	}
	if err != nil {
		return nil, err
	}
	if format == "boolean" && op != CompareEquals {
		return nil, fmt.Errorf("%w: %s on a boolean field", apperrors.ErrConstruction, op)
	}
	return it, nil
}

func parseBound(format, s string) (any, error) {
	switch format {
	case "int", "long", "float", "double":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", apperrors.ErrConstruction, s)
		}
		return f, nil
	case "date":
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return float64(ms), nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return float64(t.UnixMilli()), nil
			}
		}
		return nil, fmt.Errorf("%w: %q is not a date", apperrors.ErrConstruction, s)
	case "boolean":
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean", apperrors.ErrConstruction, s)
		}
		return b, nil
	}
	return s, nil
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// compare orders a against b, reporting false when they are not
// comparable.
func compare(a, b any) (int, bool) {
	if x, ok := numeric(a); ok {
		y, ok := numeric(b)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case bool:
		y, ok := b.(bool)
		if !ok || x != y {
			return 1, ok
		}
		return 0, true
	}
	return 0, false
}

func (it *FieldComparison) HasMatch(id int64) bool {
	if !it.data.HasMatch(id) {
		return false
	}
	v := it.data.Data(&ScoringContext{Document: id})
	c, ok := compare(v, it.lo)
	if !ok {
		return false
	}
	switch it.op {
	case CompareGreater:
		return c > 0
	case CompareLess:
		return c < 0
	case CompareEquals:
		return c == 0
	case CompareBetween:
		d, ok := compare(v, it.hi)
		return ok && c >= 0 && d <= 0
	}
	return false
}

func (it *FieldComparison) Indicator(c *ScoringContext) bool { return it.HasMatch(c.Document) }

var _ IndicatorIterator = (*FieldComparison)(nil)
