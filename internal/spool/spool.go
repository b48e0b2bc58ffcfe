// Package spool implements the dump spooler (spec.md §4.1): an
// append-only local file that the relay loop writes frames to when an
// egress has no live peers, with sequential replay and in-place
// truncation of already-read bytes.
//
// Grounded on hayabusa-cloud-framer/internal.go's "read header, learn
// length, read payload" shape (reused here for the binary record format)
// and weistn-byos/queue/commitlog.go's offset-tracked append log with a
// rewrite-based truncate.
package spool

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"
	"github.com/kjdev/zlmb/internal/codec"
)

// ErrInvalidPath is returned by New when path is empty.
var ErrInvalidPath = errors.New("spool: path must not be empty")

// ErrFormat is returned by Read when the file contents do not match the
// binary record format: a bad magic number, or a short read inside a
// record's header or payload.
var ErrFormat = errors.New("spool: malformed binary record")

// ErrNotBinary is returned by Read/ReadOpen/Truncate when the Spooler was
// constructed with a plain DumpType; only Binary dumps support replay.
var ErrNotBinary = errors.New("spool: replay requires a binary dump type")

// ErrNotOpen is returned by Read when ReadOpen has not been called.
var ErrNotOpen = errors.New("spool: read file is not open")

var magic = [5]byte{0x00, 0x7a, 0x6c, 0x6d, 0x62}

const (
	flagMore     = uint32(1)
	binHeaderLen = 5 + 4 + 8 // magic + flags(uint32) + size(uint64)
)

// Spooler is the dump spooler for a single dump file. It is not safe for
// concurrent use from multiple goroutines beyond the cross-process
// exclusive lock acquired for the duration of each Write/Truncate: callers
// (the relay loop) serialize their own access, matching spec.md's
// single-owner "the relay loop borrows ... without taking ownership" model.
type Spooler struct {
	path  string
	typ   DumpType
	codec codec.Codec

	lock *flock.Flock

	wh *os.File // write handle, open between the first write of a message and its last frame

	rh         *os.File // read handle, opened by ReadOpen
	readOffset int64
}

// New constructs a Spooler for path. No I/O happens until Write/ReadOpen.
// c may be nil, in which case codec.Identity is used (every payload is
// always treated as raw, never decompressed, in the plain format).
func New(path string, typ DumpType, c codec.Codec) (*Spooler, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}
	if c == nil {
		c = codec.Identity{}
	}
	return &Spooler{
		path:  path,
		typ:   typ,
		codec: c,
		lock:  flock.New(path + ".lock"),
	}, nil
}

// Path returns the dump file path the Spooler was constructed with.
func (s *Spooler) Path() string { return s.path }

// Type returns the configured DumpType.
func (s *Spooler) Type() DumpType { return s.typ }

// Write appends one record for a frame with payload p. more reports
// whether further frames of the same message will follow; more=false
// closes the write handle once the record is flushed (spec.md §3: the
// spooler's handle lifecycle is tied to "flags = 0 meaning no more
// frames").
//
// On any open/lock/write failure, the record is not considered written:
// the write handle (if already open from a previous call) is left open
// and the caller should treat this as a lost message, per spec.md §7.
func (s *Spooler) Write(p []byte, more bool) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("spool: lock: %w", err)
	}
	defer s.lock.Unlock()

	if s.wh == nil {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("spool: open: %w", err)
		}
		s.wh = f
	}

	var err error
	if s.typ.binary() {
		err = s.writeBinary(p, more)
	} else {
		err = s.writePlain(p, more)
	}
	if err != nil {
		return err
	}

	if !more {
		closeErr := s.wh.Close()
		s.wh = nil
		if closeErr != nil {
			return fmt.Errorf("spool: close: %w", closeErr)
		}
	}
	return nil
}

func (s *Spooler) writeBinary(p []byte, more bool) error {
	var flags uint32
	if more {
		flags = flagMore
	}
	buf := make([]byte, binHeaderLen+len(p))
	copy(buf, magic[:])
	binary.BigEndian.PutUint32(buf[5:9], flags)
	binary.BigEndian.PutUint64(buf[9:17], uint64(len(p)))
	copy(buf[binHeaderLen:], p)
	n, err := s.wh.Write(buf)
	if err != nil {
		return fmt.Errorf("spool: write: %w", err)
	}
	if n != len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func (s *Spooler) writePlain(p []byte, more bool) error {
	var flags uint32
	if more {
		flags = flagMore
	}
	out := p
	if s.codec.Valid(p) {
		if dec, ok := s.codec.Decompress(p); ok {
			out = dec
		}
	}

	var line bytes.Buffer
	if s.typ.withTime() {
		fmt.Fprintf(&line, "[%s] ", time.Now().Format("2006-01-02 15:04:05"))
	}
	if s.typ.withFlags() {
		fmt.Fprintf(&line, "[%d] ", flags)
	}
	// Raw (non-decompressible) payloads are written byte-for-byte with no
	// newline escaping: a payload containing an embedded '\n' can make the
	// resulting file ambiguous to re-split by line. This is a known,
	// documented limitation (spec.md §9 Open Question), not a bug: the
	// plain format is a human-readable dump, not a replay format.
	line.Write(out)
	line.WriteByte('\n')

	n, err := s.wh.Write(line.Bytes())
	if err != nil {
		return fmt.Errorf("spool: write: %w", err)
	}
	if n != line.Len() {
		return io.ErrShortWrite
	}
	return nil
}

// Close closes the write handle if open.
func (s *Spooler) Close() error {
	if s.wh == nil {
		return nil
	}
	err := s.wh.Close()
	s.wh = nil
	return err
}

// ReadOpen opens the dump file for sequential replay and resets the read
// cursor to the start of the file. Only valid for Binary dumps.
func (s *Spooler) ReadOpen() error {
	if !s.typ.binary() {
		return ErrNotBinary
	}
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	if s.rh != nil {
		s.rh.Close()
	}
	s.rh = f
	s.readOffset = 0
	return nil
}

// CloseRead closes the replay file handle opened by ReadOpen.
func (s *Spooler) CloseRead() error {
	if s.rh == nil {
		return nil
	}
	err := s.rh.Close()
	s.rh = nil
	return err
}

// ReadOffset returns the cumulative number of bytes consumed by Read calls
// since the last ReadOpen. Truncate discards exactly this many bytes from
// the front of the file.
func (s *Spooler) ReadOffset() int64 { return s.readOffset }

// Read reads one binary record.
//
//   - eof=true, err=nil: the file is exhausted; no record was read.
//   - err=ErrFormat: the magic number didn't match, or the header/payload
//     was truncated mid-record. The caller must abort this replay session
//     (spec.md §7); the dump file is left as-is.
//   - more=false with a nil payload and no error: a zero-size record was
//     read cleanly. spec.md §3 designates this the replay terminator;
//     the caller should stop reading (there is ordinarily no further
//     data, but the file is not modified by Read either way).
func (s *Spooler) Read() (payload []byte, more bool, eof bool, err error) {
	if !s.typ.binary() {
		return nil, false, false, ErrNotBinary
	}
	if s.rh == nil {
		return nil, false, false, ErrNotOpen
	}

	header := make([]byte, binHeaderLen)
	n, rerr := io.ReadFull(s.rh, header)
	if rerr == io.EOF && n == 0 {
		return nil, false, true, nil
	}
	if rerr != nil {
		// io.ErrUnexpectedEOF (partial header) or any other short read.
		return nil, false, false, ErrFormat
	}
	if !bytes.Equal(header[:5], magic[:]) {
		return nil, false, false, ErrFormat
	}
	flags := binary.BigEndian.Uint32(header[5:9])
	size := binary.BigEndian.Uint64(header[9:17])
	s.readOffset += int64(binHeaderLen)

	if size == 0 {
		return nil, false, false, nil
	}

	buf := make([]byte, size)
	if _, rerr := io.ReadFull(s.rh, buf); rerr != nil {
		return nil, false, false, ErrFormat
	}
	s.readOffset += int64(size)

	return buf, flags&flagMore != 0, false, nil
}

// Truncate discards bytes [0, ReadOffset()) from the dump file, keeping
// only the unread suffix. It copies that suffix into a sibling temp file
// under the same exclusive lock Write uses, then renames the temp file
// over the original so the operation is atomic at the filesystem boundary.
// If ReadOffset() is zero, the whole file is copied and replaced verbatim.
func (s *Spooler) Truncate() error {
	if !s.typ.binary() {
		return ErrNotBinary
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("spool: lock: %w", err)
	}
	defer s.lock.Unlock()

	src, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("spool: open: %w", err)
	}
	defer src.Close()

	if s.readOffset > 0 {
		if _, err := src.Seek(s.readOffset, io.SeekStart); err != nil {
			return fmt.Errorf("spool: seek: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("spool: create temp: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("spool: copy suffix: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("spool: close temp: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("spool: rename: %w", err)
	}
	return nil
}

// Remove deletes the dump file and its lock sibling. Used by tests and by
// the worker/relay teardown path; not part of spec.md's spooler contract.
func (s *Spooler) Remove() error {
	err := os.Remove(s.path)
	lockPath := s.path + ".lock"
	if _, statErr := os.Stat(lockPath); statErr == nil {
		os.Remove(lockPath)
	}
	return err
}
