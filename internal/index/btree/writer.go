// Package btree implements the sorted key→value file every index part is
// stored in. A file is a run of blocks holding front-coded keys followed by
// their values, then a vocabulary (first key of every block), a JSON
// manifest and a fixed footer.
package btree

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/cespare/xxhash/v2"
)

const (
	Magic            uint64 = 0x1a2b3c4d5e6f7a8d
	FooterSize              = 40
	MaxKeyLength            = 256
	DefaultBlockSize        = 16383
)

// Element is a value that is produced at flush time rather than buffered,
// so a posting list larger than memory can be streamed into the file.
type Element interface {
	Key() []byte
	DataLength() int64
	WriteTo(w io.Writer) (int64, error)
}

type bytesElement struct {
	key   []byte
	value []byte
}

func (e *bytesElement) Key() []byte       { return e.key }
func (e *bytesElement) DataLength() int64 { return int64(len(e.value)) }
func (e *bytesElement) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(e.value)
	return int64(n), err
}

// Options controls the physical layout of a new file.
type Options struct {
	BlockSize int
}

type vocabEntry struct {
	firstKey     []byte
	offset       int64
	headerLength int64
}

// Writer builds a BTree file. Keys must arrive in strictly increasing byte
// order. The file is written under a temporary name and renamed on Close.
type Writer struct {
	path      string
	tmpPath   string
	file      *os.File
	out       *bufio.Writer
	offset    int64
	blockSize int
	manifest  Manifest

	block       []Element
	blockKeys   []byte
	blockValues int64
	blockLast   []byte

	lastKey  []byte
	keyCount int64
	vocab    []vocabEntry
	closed   bool
	logger   *slog.Logger
}

func NewWriter(path string, opts Options) (*Writer, error) {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("creating btree file %s: %w", tmpPath, err)
	}
	return &Writer{
		path:      path,
		tmpPath:   tmpPath,
		file:      f,
		out:       bufio.NewWriterSize(f, 1<<16),
		blockSize: opts.BlockSize,
		manifest:  make(Manifest),
		logger:    slog.Default().With("component", "btree-writer", "path", path),
	}, nil
}

// Manifest returns the mutable manifest that Close will persist.
func (w *Writer) Manifest() Manifest {
	return w.manifest
}

// Add stores a buffered value under key.
func (w *Writer) Add(key, value []byte) error {
	return w.AddElement(&bytesElement{key: bytes.Clone(key), value: value})
}

// AddElement stores an element whose value is written when its block is
// flushed.
func (w *Writer) AddElement(e Element) error {
	if w.closed {
		return fmt.Errorf("btree writer %s is closed", w.path)
	}
	key := e.Key()
	if err := w.checkKey(key); err != nil {
		return err
	}

	entry := encodeKeyEntry(nil, w.blockLast, key, e.DataLength())
	if len(w.block) > 0 && w.projectedSize(len(entry))+e.DataLength() > int64(w.blockSize) {
		if err := w.flush(); err != nil {
			return err
		}
		entry = encodeKeyEntry(nil, nil, key, e.DataLength())
	}

	w.block = append(w.block, e)
	w.blockKeys = append(w.blockKeys, entry...)
	w.blockValues += e.DataLength()
	w.blockLast = bytes.Clone(key)
	w.lastKey = w.blockLast
	w.keyCount++
	return nil
}

func (w *Writer) checkKey(key []byte) error {
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %d bytes (max %d)", apperrors.ErrKeyTooLong, len(key), MaxKeyLength)
	}
	if w.lastKey == nil {
		return nil
	}
	switch c := bytes.Compare(w.lastKey, key); {
	case c == 0:
		return fmt.Errorf("%w: %q", apperrors.ErrDuplicateKey, key)
	case c > 0:
		return fmt.Errorf("%w: %q after %q", apperrors.ErrOutOfOrderKey, key, w.lastKey)
	}
	return nil
}

func (w *Writer) projectedSize(extraKeyBytes int) int64 {
	keys := len(w.blockKeys) + extraKeyBytes
	count := uint64(len(w.block) + 1)
	return int64(vbyte.Len(count)+vbyte.Len(uint64(w.blockValues))+keys) + w.blockValues
}

// encodeKeyEntry front-codes key against prev and appends its value length.
func encodeKeyEntry(dst, prev, key []byte, valueLength int64) []byte {
	shared := 0
	for shared < len(prev) && shared < len(key) && prev[shared] == key[shared] {
		shared++
	}
	dst = vbyte.AppendUint64(dst, uint64(shared))
	dst = vbyte.AppendBytes(dst, key[shared:])
	return vbyte.AppendUint64(dst, uint64(valueLength))
}

func (w *Writer) flush() error {
	if len(w.block) == 0 {
		return nil
	}
	header := vbyte.AppendUint64(nil, uint64(len(w.block)))
	header = vbyte.AppendUint64(header, uint64(w.blockValues))
	header = append(header, w.blockKeys...)

	w.vocab = append(w.vocab, vocabEntry{
		firstKey:     bytes.Clone(w.block[0].Key()),
		offset:       w.offset,
		headerLength: int64(len(header)),
	})
	if err := w.write(header); err != nil {
		return err
	}
	for _, e := range w.block {
		n, err := e.WriteTo(w.out)
		if err != nil {
			return fmt.Errorf("writing value for key %q: %w", e.Key(), err)
		}
		if n != e.DataLength() {
			return fmt.Errorf("value for key %q wrote %d bytes, declared %d", e.Key(), n, e.DataLength())
		}
		w.offset += n
	}

	w.block = w.block[:0]
	w.blockKeys = w.blockKeys[:0]
	w.blockValues = 0
	w.blockLast = nil
	return nil
}

func (w *Writer) write(p []byte) error {
	n, err := w.out.Write(p)
	w.offset += int64(n)
	if err != nil {
		return fmt.Errorf("writing btree file %s: %w", w.tmpPath, err)
	}
	return nil
}

// Close flushes the open block, writes the vocabulary, manifest and footer,
// syncs the file and moves it into place.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.finish(); err != nil {
		w.file.Close()
		os.Remove(w.tmpPath)
		return err
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return fmt.Errorf("renaming btree file: %w", err)
	}
	w.logger.Debug("btree written", "keys", w.keyCount, "blocks", len(w.vocab), "bytes", w.offset)
	return nil
}

func (w *Writer) finish() error {
	if err := w.flush(); err != nil {
		return err
	}

	w.manifest.Set("keyCount", w.keyCount)
	w.manifest.Set("blockCount", int64(len(w.vocab)))
	w.manifest.Set("blockSize", int64(w.blockSize))
	w.manifest.Set("emptyIndexFile", w.keyCount == 0)

	vocabOffset := w.offset
	vocab := vbyte.AppendUint64(nil, uint64(len(w.vocab)))
	for _, v := range w.vocab {
		vocab = vbyte.AppendBytes(vocab, v.firstKey)
		vocab = vbyte.AppendInt64(vocab, v.offset)
		vocab = vbyte.AppendInt64(vocab, v.headerLength)
	}
	if err := w.write(vocab); err != nil {
		return err
	}

	manifestOffset := w.offset
	manifest, err := w.manifest.encode()
	if err != nil {
		return err
	}
	if err := w.write(manifest); err != nil {
		return err
	}

	digest := xxhash.New()
	digest.Write(vocab)
	digest.Write(manifest)

	footer := make([]byte, FooterSize)
	binary.BigEndian.PutUint64(footer[0:8], uint64(vocabOffset))
	binary.BigEndian.PutUint64(footer[8:16], uint64(manifestOffset))
	binary.BigEndian.PutUint64(footer[16:24], uint64(w.blockSize))
	binary.BigEndian.PutUint64(footer[24:32], digest.Sum64())
	binary.BigEndian.PutUint64(footer[32:40], Magic)
	if err := w.write(footer); err != nil {
		return err
	}

	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("flushing btree file: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing btree file: %w", err)
	}
	return w.file.Close()
}
