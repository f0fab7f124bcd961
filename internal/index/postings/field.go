package postings

import (
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// Field formats.
const (
	FormatString  = "string"
	FormatInt     = "int"
	FormatLong    = "long"
	FormatFloat   = "float"
	FormatDouble  = "double"
	FormatDate    = "date"
	FormatBoolean = "boolean"
)

// IsNumericFormat reports whether values of format compare as numbers.
func IsNumericFormat(format string) bool {
	switch format {
	case FormatInt, FormatLong, FormatFloat, FormatDouble, FormatDate:
		return true
	}
	return false
}

// FieldWriter writes field name → document → typed value lists. Each
// field's format is fixed up front and recorded in the manifest.
type FieldWriter struct {
	*partWriter
	formats map[string]string
	format  string
}

func NewFieldWriter(path string, formats map[string]string, opts WriterOptions) (*FieldWriter, error) {
	for field, f := range formats {
		if !validFormat(f) {
			return nil, fmt.Errorf("%w: field %q has unknown format %q", apperrors.ErrInvalidInput, field, f)
		}
	}
	p, err := newPartWriter(path, ClassField, "field", opts)
	if err != nil {
		return nil, err
	}
	p.bt.Manifest().Set(KeyFieldFormats, formats)
	return &FieldWriter{partWriter: p, formats: formats}, nil
}

func validFormat(f string) bool {
	return f == FormatString || f == FormatBoolean || IsNumericFormat(f)
}

func (w *FieldWriter) StartKey(key []byte) error {
	if err := w.startKey(key); err != nil {
		return err
	}
	w.format = w.formats[string(key)]
	if w.format == "" {
		w.format = FormatString
	}
	return nil
}

// AddPosting stores value for doc. Dates accept time.Time or epoch
// milliseconds.
func (w *FieldWriter) AddPosting(doc int64, value any) error {
	l, err := w.list()
	if err != nil {
		return err
	}
	encoded, err := encodeField(nil, w.format, value)
	if err != nil {
		return fmt.Errorf("field %q document %d: %w", l.key, doc, err)
	}
	if err := l.beginDocument(doc); err != nil {
		return err
	}
	l.data = append(l.data, encoded...)
	l.addCount(1)
	return nil
}

func encodeField(dst []byte, format string, value any) ([]byte, error) {
	switch format {
	case FormatString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: want string, got %T", apperrors.ErrInvalidInput, value)
		}
		return vbyte.AppendBytes(dst, []byte(s)), nil
	case FormatInt, FormatLong:
		n, ok := toInt64(value)
		if !ok {
			return nil, fmt.Errorf("%w: want integer, got %T", apperrors.ErrInvalidInput, value)
		}
		return vbyte.AppendInt64(dst, n), nil
	case FormatDate:
		if t, ok := value.(time.Time); ok {
			return vbyte.AppendInt64(dst, t.UnixMilli()), nil
		}
		n, ok := toInt64(value)
		if !ok {
			return nil, fmt.Errorf("%w: want date, got %T", apperrors.ErrInvalidInput, value)
		}
		return vbyte.AppendInt64(dst, n), nil
	case FormatFloat:
		f, ok := toFloat64(value)
		if !ok {
			return nil, fmt.Errorf("%w: want float, got %T", apperrors.ErrInvalidInput, value)
		}
		return vbyte.AppendFloat32(dst, float32(f)), nil
	case FormatDouble:
		f, ok := toFloat64(value)
		if !ok {
			return nil, fmt.Errorf("%w: want double, got %T", apperrors.ErrInvalidInput, value)
		}
		return vbyte.AppendFloat64(dst, f), nil
	case FormatBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: want boolean, got %T", apperrors.ErrInvalidInput, value)
		}
		var v uint64
		if b {
			v = 1
		}
		return vbyte.AppendUint64(dst, v), nil
	}
	return nil, fmt.Errorf("%w: unknown format %q", apperrors.ErrInvalidInput, format)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func (w *FieldWriter) Close() error { return w.close() }

type FieldReader struct {
	*Part
	formats map[string]string
}

func OpenFieldReader(name, path string) (*FieldReader, error) {
	p, err := OpenPart(name, path, ClassField)
	if err != nil {
		return nil, err
	}
	return &FieldReader{Part: p, formats: p.Manifest().StringMap(KeyFieldFormats)}, nil
}

// Format returns the declared format of field, defaulting to string.
func (r *FieldReader) Format(field string) string {
	if f, ok := r.formats[field]; ok {
		return f
	}
	return FormatString
}

func (r *FieldReader) Iterator(field string) (*FieldIterator, error) {
	value, err := r.value([]byte(field))
	if err != nil || value == nil {
		return nil, err
	}
	return NewFieldIterator(field, r.Format(field), value)
}

// FieldIterator yields one typed value per document: string, int64,
// float64 or bool. Float fields widen to float64; dates are epoch
// milliseconds.
type FieldIterator struct {
	cursor
	format string
	value  any
}

func NewFieldIterator(field, format string, value []byte) (*FieldIterator, error) {
	it := &FieldIterator{format: format}
	if err := it.init(field, value, it.readValue); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *FieldIterator) readValue(r *vbyte.Reader) (int64, error) {
	switch it.format {
	case FormatString:
		b, err := r.Bytes()
		if err != nil {
			return 0, err
		}
		it.value = string(b)
	case FormatInt, FormatLong, FormatDate:
		n, err := r.Int64()
		if err != nil {
			return 0, err
		}
		it.value = n
	case FormatFloat:
		f, err := r.Float32()
		if err != nil {
			return 0, err
		}
		it.value = float64(f)
	case FormatDouble:
		f, err := r.Float64()
		if err != nil {
			return 0, err
		}
		it.value = f
	case FormatBoolean:
		b, err := r.Uint64()
		if err != nil {
			return 0, err
		}
		it.value = b != 0
	default:
		return 0, fmt.Errorf("unknown field format %q", it.format)
	}
	return 1, nil
}

func (it *FieldIterator) Format() string { return it.format }

func (it *FieldIterator) Data(c *iterator.ScoringContext) any {
	if !it.HasMatch(c.Document) {
		return nil
	}
	return it.value
}

var _ iterator.DataIterator = (*FieldIterator)(nil)
