package btree

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/cespare/xxhash/v2"
)

// Reader gives read access to a sealed BTree file. The file handle,
// vocabulary and manifest never change after Open, so one Reader may serve
// any number of concurrent iterators.
type Reader struct {
	path        string
	file        *os.File
	vocab       []vocabEntry
	vocabOffset int64
	blockSize   int
	manifest    Manifest
}

func corrupt(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", apperrors.ErrCorruptIndex, path, fmt.Sprintf(format, args...))
}

// Open reads and validates the footer, vocabulary and manifest of path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening btree file: %w", err)
	}
	r, err := load(path, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

// IsBTree reports whether path ends with a valid footer magic.
func IsBTree(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.Size() < FooterSize {
		return false
	}
	var magic [8]byte
	if _, err := f.ReadAt(magic[:], info.Size()-8); err != nil {
		return false
	}
	return binary.BigEndian.Uint64(magic[:]) == Magic
}

func load(path string, f *os.File) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat btree file: %w", err)
	}
	size := info.Size()
	if size < FooterSize {
		return nil, corrupt(path, "file too short (%d bytes)", size)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, size-FooterSize); err != nil {
		return nil, fmt.Errorf("reading btree footer: %w", err)
	}
	if magic := binary.BigEndian.Uint64(footer[32:40]); magic != Magic {
		return nil, corrupt(path, "bad magic %x", magic)
	}
	vocabOffset := int64(binary.BigEndian.Uint64(footer[0:8]))
	manifestOffset := int64(binary.BigEndian.Uint64(footer[8:16]))
	blockSize := int(binary.BigEndian.Uint64(footer[16:24]))
	checksum := binary.BigEndian.Uint64(footer[24:32])
	footerStart := size - FooterSize
	if vocabOffset < 0 || vocabOffset > manifestOffset || manifestOffset > footerStart {
		return nil, corrupt(path, "footer offsets out of range")
	}

	tail := make([]byte, footerStart-vocabOffset)
	if _, err := f.ReadAt(tail, vocabOffset); err != nil {
		return nil, fmt.Errorf("reading btree vocabulary: %w", err)
	}
	if xxhash.Sum64(tail) != checksum {
		return nil, corrupt(path, "vocabulary checksum mismatch")
	}
	vocabBytes := tail[:manifestOffset-vocabOffset]
	manifestBytes := tail[manifestOffset-vocabOffset:]

	vocab, err := decodeVocabulary(vocabBytes, vocabOffset)
	if err != nil {
		return nil, corrupt(path, "vocabulary: %v", err)
	}
	manifest, err := decodeManifest(manifestBytes)
	if err != nil {
		return nil, corrupt(path, "manifest: %v", err)
	}
	return &Reader{
		path:        path,
		file:        f,
		vocab:       vocab,
		vocabOffset: vocabOffset,
		blockSize:   blockSize,
		manifest:    manifest,
	}, nil
}

func decodeVocabulary(data []byte, limit int64) ([]vocabEntry, error) {
	r := vbyte.NewReader(data)
	count, err := r.Uint64()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(data)) {
		return nil, fmt.Errorf("block count %d exceeds vocabulary size", count)
	}
	vocab := make([]vocabEntry, 0, count)
	var prevOffset int64 = -1
	for i := uint64(0); i < count; i++ {
		key, err := r.Bytes()
		if err != nil {
			return nil, err
		}
		offset, err := r.Int64()
		if err != nil {
			return nil, err
		}
		headerLength, err := r.Int64()
		if err != nil {
			return nil, err
		}
		if offset <= prevOffset || offset+headerLength > limit || headerLength <= 0 {
			return nil, fmt.Errorf("block %d framing out of range", i)
		}
		if len(vocab) > 0 && bytes.Compare(vocab[len(vocab)-1].firstKey, key) >= 0 {
			return nil, fmt.Errorf("block %d first key not increasing", i)
		}
		prevOffset = offset
		vocab = append(vocab, vocabEntry{firstKey: bytes.Clone(key), offset: offset, headerLength: headerLength})
	}
	return vocab, nil
}

func (r *Reader) Path() string { return r.path }

func (r *Reader) Manifest() Manifest { return r.manifest }

func (r *Reader) BlockCount() int { return len(r.vocab) }

func (r *Reader) KeyCount() int64 { return r.manifest.Int64("keyCount", 0) }

func (r *Reader) Close() error {
	return r.file.Close()
}

// Iterator returns a cursor positioned on the first key.
func (r *Reader) Iterator() (*Iterator, error) {
	it := &Iterator{r: r, blockIdx: -1}
	if len(r.vocab) == 0 {
		it.done = true
		return it, nil
	}
	if err := it.loadBlock(0); err != nil {
		return nil, err
	}
	return it, nil
}

// Find returns a cursor on key, or nil when the key is absent.
func (r *Reader) Find(key []byte) (*Iterator, error) {
	it := &Iterator{r: r, blockIdx: -1}
	found, err := it.Find(key)
	if err != nil || !found {
		return nil, err
	}
	return it, nil
}

// Get reads the whole value stored under key.
func (r *Reader) Get(key []byte) ([]byte, bool, error) {
	it, err := r.Find(key)
	if err != nil || it == nil {
		return nil, false, err
	}
	value, err := it.Value()
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// locate returns the index of the block that would hold key.
func (r *Reader) locate(key []byte) int {
	i := sort.Search(len(r.vocab), func(i int) bool {
		return bytes.Compare(r.vocab[i].firstKey, key) > 0
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

func (r *Reader) blockEnd(idx int) int64 {
	if idx+1 < len(r.vocab) {
		return r.vocab[idx+1].offset
	}
	return r.vocabOffset
}

type block struct {
	keys         [][]byte
	valueOffsets []int64
	valueLengths []int64
}

func (r *Reader) readBlock(idx int) (*block, error) {
	entry := r.vocab[idx]
	header := make([]byte, entry.headerLength)
	if _, err := r.file.ReadAt(header, entry.offset); err != nil {
		return nil, fmt.Errorf("reading block %d of %s: %w", idx, r.path, err)
	}
	in := vbyte.NewReader(header)
	count, err := in.Uint64()
	if err != nil {
		return nil, corrupt(r.path, "block %d: %v", idx, err)
	}
	valuesLength, err := in.Int64()
	if err != nil {
		return nil, corrupt(r.path, "block %d: %v", idx, err)
	}
	if count == 0 || count > uint64(len(header)) {
		return nil, corrupt(r.path, "block %d: bad key count %d", idx, count)
	}
	b := &block{
		keys:         make([][]byte, 0, count),
		valueOffsets: make([]int64, 0, count),
		valueLengths: make([]int64, 0, count),
	}
	valueStart := entry.offset + entry.headerLength
	if valueStart+valuesLength != r.blockEnd(idx) {
		return nil, corrupt(r.path, "block %d: length mismatch", idx)
	}
	var prev []byte
	var cursor int64
	for i := uint64(0); i < count; i++ {
		shared, err := in.Uint64()
		if err != nil {
			return nil, corrupt(r.path, "block %d key %d: %v", idx, i, err)
		}
		suffix, err := in.Bytes()
		if err != nil {
			return nil, corrupt(r.path, "block %d key %d: %v", idx, i, err)
		}
		length, err := in.Int64()
		if err != nil {
			return nil, corrupt(r.path, "block %d key %d: %v", idx, i, err)
		}
		if shared > uint64(len(prev)) || length < 0 {
			return nil, corrupt(r.path, "block %d key %d: bad prefix", idx, i)
		}
		key := make([]byte, 0, int(shared)+len(suffix))
		key = append(key, prev[:shared]...)
		key = append(key, suffix...)
		b.keys = append(b.keys, key)
		b.valueOffsets = append(b.valueOffsets, valueStart+cursor)
		b.valueLengths = append(b.valueLengths, length)
		cursor += length
		prev = key
	}
	if cursor != valuesLength || in.Len() != 0 {
		return nil, corrupt(r.path, "block %d: value region mismatch", idx)
	}
	return b, nil
}

// Iterator walks keys in order. It is not safe for concurrent use.
type Iterator struct {
	r        *Reader
	blockIdx int
	block    *block
	keyIdx   int
	done     bool
}

func (it *Iterator) loadBlock(idx int) error {
	if idx >= len(it.r.vocab) {
		it.done = true
		it.block = nil
		return nil
	}
	b, err := it.r.readBlock(idx)
	if err != nil {
		return err
	}
	it.blockIdx = idx
	it.block = b
	it.keyIdx = 0
	it.done = false
	return nil
}

func (it *Iterator) IsDone() bool { return it.done }

func (it *Iterator) Key() []byte {
	if it.done {
		return nil
	}
	return it.block.keys[it.keyIdx]
}

func (it *Iterator) ValueLength() int64 {
	if it.done {
		return 0
	}
	return it.block.valueLengths[it.keyIdx]
}

// Value reads the value of the current key.
func (it *Iterator) Value() ([]byte, error) {
	if it.done {
		return nil, io.EOF
	}
	value := make([]byte, it.block.valueLengths[it.keyIdx])
	if _, err := it.r.file.ReadAt(value, it.block.valueOffsets[it.keyIdx]); err != nil {
		return nil, fmt.Errorf("reading value for key %q: %w", it.Key(), err)
	}
	return value, nil
}

// ValueReader exposes the current value as a section of the file.
func (it *Iterator) ValueReader() *io.SectionReader {
	if it.done {
		return io.NewSectionReader(it.r.file, 0, 0)
	}
	return io.NewSectionReader(it.r.file, it.block.valueOffsets[it.keyIdx], it.block.valueLengths[it.keyIdx])
}

// Next advances to the following key.
func (it *Iterator) Next() error {
	if it.done {
		return nil
	}
	it.keyIdx++
	if it.keyIdx < len(it.block.keys) {
		return nil
	}
	return it.loadBlock(it.blockIdx + 1)
}

// SkipTo positions the iterator on the first key ≥ key.
func (it *Iterator) SkipTo(key []byte) error {
	if len(it.r.vocab) == 0 {
		it.done = true
		return nil
	}
	idx := it.r.locate(key)
	if idx != it.blockIdx || it.block == nil {
		if err := it.loadBlock(idx); err != nil {
			return err
		}
	}
	it.done = false
	it.keyIdx = sort.Search(len(it.block.keys), func(i int) bool {
		return bytes.Compare(it.block.keys[i], key) >= 0
	})
	if it.keyIdx == len(it.block.keys) {
		return it.loadBlock(idx + 1)
	}
	return nil
}

// Find positions the iterator on key and reports whether it exists.
func (it *Iterator) Find(key []byte) (bool, error) {
	if err := it.SkipTo(key); err != nil {
		return false, err
	}
	return !it.done && bytes.Equal(it.Key(), key), nil
}
