// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package seqdb

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Entry is one record of the index file.
type Entry struct {
	Key    uint32
	Offset uint64
	Length uint64 // including the trailing NUL
}

// Reader provides random access to a database by key or by ordinal.
//
// The data file is memory-mapped, so returned values are borrowed views
// into the mapping and stay valid until Remap or Close is called.
// All accessors are safe for concurrent use by multiple readers.
type Reader struct {
	file      string
	indexFile string

	fh *os.File

	entries []Entry
	key2idx map[uint32]int

	residues uint64 // sum of payload sizes, without the NUL terminators

	data     []byte
	mapped   bool // false after ReadAllIntoMemory copied the data
	dataSize int64
}

// Open opens a database for reading and loads its index.
func Open(file string, indexFile string) (*Reader, error) {
	if indexFile == "" {
		indexFile = file + SeqDBIndexFileExt
	}
	r := &Reader{
		file:      file,
		indexFile: indexFile,
	}

	var err error
	if err = r.readIndex(); err != nil {
		return nil, err
	}

	r.fh, err = os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	fi, err := r.fh.Stat()
	if err != nil {
		return nil, errors.Wrap(err, file)
	}
	r.dataSize = fi.Size()

	if n := len(r.entries); n > 0 {
		last := r.entries[n-1]
		if uint64(r.dataSize) < last.Offset+last.Length {
			r.fh.Close()
			return nil, errors.Wrap(ErrBrokenFile, file)
		}
	}

	if err = r.mmap(); err != nil {
		r.fh.Close()
		return nil, err
	}

	return r, nil
}

func (r *Reader) readIndex() error {
	fh, err := os.Open(r.indexFile)
	if err != nil {
		return errors.Wrap(err, r.indexFile)
	}
	defer fh.Close()

	r.entries = make([]Entry, 0, 1024)
	r.key2idx = make(map[uint32]int, 1024)

	scanner := bufio.NewScanner(fh)
	items := make([]string, 3)
	var line string
	var key, offset, length uint64
	for scanner.Scan() {
		line = strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}

		stringSplitNByByte(line, '\t', 3, &items)
		if len(items) < 3 {
			return errors.Wrap(ErrInvalidIndexFormat, r.indexFile)
		}
		key, err = strconv.ParseUint(items[0], 10, 32)
		if err != nil {
			return errors.Wrap(ErrInvalidIndexFormat, r.indexFile)
		}
		offset, err = strconv.ParseUint(items[1], 10, 64)
		if err != nil {
			return errors.Wrap(ErrInvalidIndexFormat, r.indexFile)
		}
		length, err = strconv.ParseUint(items[2], 10, 64)
		if err != nil {
			return errors.Wrap(ErrInvalidIndexFormat, r.indexFile)
		}

		r.key2idx[uint32(key)] = len(r.entries)
		r.entries = append(r.entries, Entry{
			Key:    uint32(key),
			Offset: offset,
			Length: length,
		})
		if length > 0 {
			r.residues += length - 1
		}
	}
	if err = scanner.Err(); err != nil {
		return errors.Wrap(err, r.indexFile)
	}
	return nil
}

func (r *Reader) mmap() error {
	if r.dataSize == 0 {
		r.data = []byte{}
		r.mapped = false
		return nil
	}
	data, err := unix.Mmap(int(r.fh.Fd()), 0, int(r.dataSize), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return errors.Wrap(err, r.file)
	}
	r.data = data
	r.mapped = true
	return nil
}

// Size returns the number of records.
func (r *Reader) Size() uint64 {
	return uint64(len(r.entries))
}

// Residues returns the total payload size of all records,
// i.e., the number of residues for a sequence database.
func (r *Reader) Residues() uint64 {
	return r.residues
}

// KeyAt returns the key of the record at the given ordinal.
func (r *Reader) KeyAt(ordinal uint64) uint32 {
	return r.entries[ordinal].Key
}

// LengthAt returns the payload size of the record at the given ordinal,
// without the NUL terminator.
func (r *Reader) LengthAt(ordinal uint64) uint64 {
	l := r.entries[ordinal].Length
	if l == 0 {
		return 0
	}
	return l - 1
}

// DataByOrdinal returns the payload of the record at the given ordinal,
// without the NUL terminator.
func (r *Reader) DataByOrdinal(ordinal uint64) []byte {
	e := r.entries[ordinal]
	if e.Length == 0 {
		return r.data[e.Offset:e.Offset]
	}
	return r.data[e.Offset : e.Offset+e.Length-1]
}

// DataByKey returns the payload of the record with the given key,
// or nil if the key is not present.
func (r *Reader) DataByKey(key uint32) []byte {
	i, ok := r.key2idx[key]
	if !ok {
		return nil
	}
	return r.DataByOrdinal(uint64(i))
}

// ReadAllIntoMemory replaces the mapping with a private heap copy,
// keeping all records resident regardless of page cache pressure.
func (r *Reader) ReadAllIntoMemory() error {
	if !r.mapped {
		return nil
	}
	data := make([]byte, len(r.data))
	copy(data, r.data)
	if err := unix.Munmap(r.data); err != nil {
		return errors.Wrap(err, r.file)
	}
	r.data = data
	r.mapped = false
	return nil
}

// Remap drops the current mapping and maps the data file again,
// releasing OS-backed pages accumulated since the last call.
// Values returned before the call are invalidated.
func (r *Reader) Remap() error {
	if !r.mapped {
		return nil
	}
	if err := unix.Munmap(r.data); err != nil {
		return errors.Wrap(err, r.file)
	}
	return r.mmap()
}

// Close unmaps the data file and closes it.
func (r *Reader) Close() error {
	if r.mapped {
		if err := unix.Munmap(r.data); err != nil {
			return errors.Wrap(err, r.file)
		}
		r.mapped = false
	}
	r.data = nil
	return r.fh.Close()
}

func stringSplitNByByte(s string, sep byte, n int, a *[]string) {
	if a == nil {
		tmp := make([]string, n)
		a = &tmp
	}

	n--
	i := 0
	for i < n {
		m := strings.IndexByte(s, sep)
		if m < 0 {
			break
		}
		(*a)[i] = s[:m]
		s = s[m+1:]
		i++
	}
	(*a)[i] = s

	(*a) = (*a)[:i+1]
}
