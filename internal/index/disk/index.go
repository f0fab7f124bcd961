// Package disk opens an index directory: one BTree file per part, each
// dispatched to its codec by the reader class in its manifest.
package disk

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/btree"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// Conventional part names written by the builder.
const (
	PartPostings     = "postings"
	PartExtents      = "extents"
	PartFields       = "fields"
	PartScores       = "scores"
	PartLengths      = "lengths"
	PartNames        = "names"
	PartNamesReverse = "names.reverse"
)

// PartStatistics are the aggregate counts recorded in a part's manifest.
type PartStatistics struct {
	PartName             string `json:"partName"`
	Class                string `json:"class"`
	DefaultOperator      string `json:"defaultOperator"`
	CollectionLength     int64  `json:"collectionLength"`
	VocabCount           int64  `json:"vocabCount"`
	DocumentCount        int64  `json:"documentCount"`
	HighestFrequency     int64  `json:"highestFrequency"`
	HighestDocumentCount int64  `json:"highestDocumentCount"`
}

// Add folds other into s.
func (s PartStatistics) Add(other PartStatistics) PartStatistics {
	s.CollectionLength += other.CollectionLength
	s.VocabCount = max(s.VocabCount, other.VocabCount)
	s.DocumentCount += other.DocumentCount
	s.HighestFrequency = max(s.HighestFrequency, other.HighestFrequency)
	s.HighestDocumentCount = max(s.HighestDocumentCount, other.HighestDocumentCount)
	return s
}

type part struct {
	*postings.Part
	position *postings.PositionReader
	count    *postings.CountReader
	window   *postings.WindowReader
	field    *postings.FieldReader
	sparse   *postings.SparseFloatReader
}

// Index is an opened index directory. It is immutable after Open and safe
// for concurrent queries; iterators it hands out are not.
type Index struct {
	dir     string
	parts   map[string]*part
	lengths *postings.LengthsReader
	names   *postings.NamesReader
	reverse *postings.NamesReverseReader
	logger  *slog.Logger
}

// Open loads every BTree part in dir. Files that are not BTrees, and
// half-written .tmp files, are ignored.
func Open(dir string) (*Index, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading index directory %s: %w", dir, err)
	}
	idx := &Index{
		dir:    dir,
		parts:  make(map[string]*part),
		logger: slog.Default().With("component", "index", "dir", dir),
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".tmp") || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if !btree.IsBTree(path) {
			idx.logger.Debug("skipping non-index file", "file", name)
			continue
		}
		if err := idx.openPart(name, path); err != nil {
			idx.Close()
			return nil, fmt.Errorf("opening part %s: %w", name, err)
		}
	}
	idx.logger.Info("index opened", "parts", len(idx.parts))
	return idx, nil
}

func (idx *Index) openPart(name, path string) error {
	generic, err := postings.OpenPart(name, path, "")
	if err != nil {
		return err
	}
	class := generic.Class()
	generic.Close()

	p := &part{}
	switch class {
	case postings.ClassPosition:
		p.position, err = postings.OpenPositionReader(name, path)
		if err == nil {
			p.Part = p.position.Part
		}
	case postings.ClassCount:
		p.count, err = postings.OpenCountReader(name, path)
		if err == nil {
			p.Part = p.count.Part
		}
	case postings.ClassWindow:
		p.window, err = postings.OpenWindowReader(name, path)
		if err == nil {
			p.Part = p.window.Part
		}
	case postings.ClassField:
		p.field, err = postings.OpenFieldReader(name, path)
		if err == nil {
			p.Part = p.field.Part
		}
	case postings.ClassSparse:
		p.sparse, err = postings.OpenSparseFloatReader(name, path)
		if err == nil {
			p.Part = p.sparse.Part
		}
	case postings.ClassLengths:
		idx.lengths, err = postings.OpenLengthsReader(name, path)
		if err == nil {
			p.Part = idx.lengths.Part
		}
	case postings.ClassNames:
		idx.names, err = postings.OpenNamesReader(name, path)
		if err == nil {
			p.Part = idx.names.Part
		}
	case postings.ClassNamesReverse:
		idx.reverse, err = postings.OpenNamesReverseReader(name, path)
		if err == nil {
			p.Part = idx.reverse.Part
		}
	default:
		idx.logger.Warn("skipping part with unknown reader class", "part", name, "class", class)
		return nil
	}
	if err != nil {
		return err
	}
	idx.parts[name] = p
	return nil
}

func (idx *Index) Dir() string { return idx.dir }

// PartNames lists the opened parts in name order.
func (idx *Index) PartNames() []string {
	names := make([]string, 0, len(idx.parts))
	for n := range idx.parts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (idx *Index) HasPart(name string) bool {
	_, ok := idx.parts[name]
	return ok
}

func (idx *Index) part(name string) (*part, error) {
	p, ok := idx.parts[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", apperrors.ErrPartNotFound, name, idx.dir)
	}
	return p, nil
}

// Class returns the reader class of a part.
func (idx *Index) Class(name string) (string, error) {
	p, err := idx.part(name)
	if err != nil {
		return "", err
	}
	return p.Class(), nil
}

// DefaultOperator is the operator a leaf over part compiles to when the
// query names none.
func (idx *Index) DefaultOperator(name string) (string, error) {
	p, err := idx.part(name)
	if err != nil {
		return "", err
	}
	return p.Manifest().String(postings.KeyDefaultOperator, ""), nil
}

// Iterator opens a fresh cursor over key in part. It returns a nil
// iterator, not an error, when the key is absent.
func (idx *Index) Iterator(partName, key string) (iterator.Iterator, error) {
	p, err := idx.part(partName)
	if err != nil {
		return nil, err
	}
	switch {
	case p.position != nil:
		it, err := p.position.Iterator(key)
		if err != nil || it == nil {
			return nil, err
		}
		return it, nil
	case p.count != nil:
		it, err := p.count.Iterator(key)
		if err != nil || it == nil {
			return nil, err
		}
		return it, nil
	case p.window != nil:
		it, err := p.window.Iterator(key)
		if err != nil || it == nil {
			return nil, err
		}
		return it, nil
	case p.field != nil:
		it, err := p.field.Iterator(key)
		if err != nil || it == nil {
			return nil, err
		}
		return it, nil
	case p.sparse != nil:
		it, err := p.sparse.Iterator(key)
		if err != nil || it == nil {
			return nil, err
		}
		return it, nil
	case idx.lengths != nil && p.Part == idx.lengths.Part:
		it, err := idx.lengths.Iterator(key)
		if err != nil || it == nil {
			return nil, err
		}
		return it, nil
	}
	return nil, fmt.Errorf("%w: part %q of class %q has no posting lists", apperrors.ErrInvalidInput, partName, p.Class())
}

// FieldFormat reports the declared format of a field in a field part.
func (idx *Index) FieldFormat(partName, field string) (string, error) {
	p, err := idx.part(partName)
	if err != nil {
		return "", err
	}
	if p.field == nil {
		return "", fmt.Errorf("%w: part %q is not a field part", apperrors.ErrInvalidInput, partName)
	}
	return p.field.Format(field), nil
}

// Lengths opens the lengths iterator for field.
func (idx *Index) Lengths(field string) (*postings.LengthsIterator, error) {
	if idx.lengths == nil {
		return nil, fmt.Errorf("%w: no lengths part in %s", apperrors.ErrPartNotFound, idx.dir)
	}
	it, err := idx.lengths.Iterator(field)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("%w: no lengths for field %q", apperrors.ErrPartNotFound, field)
	}
	return it, nil
}

// CollectionStatistics returns the length statistics of field.
func (idx *Index) CollectionStatistics(field string) (postings.FieldStatistics, error) {
	if idx.lengths == nil {
		return postings.FieldStatistics{}, fmt.Errorf("%w: no lengths part in %s", apperrors.ErrPartNotFound, idx.dir)
	}
	return idx.lengths.FieldStatistics(field)
}

// PartStatistics reads the aggregate counts of a part from its manifest.
func (idx *Index) PartStatistics(name string) (PartStatistics, error) {
	p, err := idx.part(name)
	if err != nil {
		return PartStatistics{}, err
	}
	m := p.Manifest()
	return PartStatistics{
		PartName:             name,
		Class:                p.Class(),
		DefaultOperator:      m.String(postings.KeyDefaultOperator, ""),
		CollectionLength:     m.Int64(postings.KeyCollectionLength, 0),
		VocabCount:           m.Int64(postings.KeyVocabCount, 0),
		DocumentCount:        m.Int64(postings.KeyDocumentCount, 0),
		HighestFrequency:     m.Int64(postings.KeyHighestFrequency, 0),
		HighestDocumentCount: m.Int64(postings.KeyHighestDocumentCount, 0),
	}, nil
}

// Names is the id → name reader, or nil when the index has none.
func (idx *Index) Names() *postings.NamesReader { return idx.names }

// ReverseNames is the name → id reader, or nil when the index has none.
func (idx *Index) ReverseNames() *postings.NamesReverseReader { return idx.reverse }

func (idx *Index) Close() error {
	var errs []error
	for name, p := range idx.parts {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing part %s: %w", name, err))
		}
	}
	idx.parts = map[string]*part{}
	return errors.Join(errs...)
}
