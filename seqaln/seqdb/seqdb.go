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

// Package seqdb provides an indexed record store where values are addressed
// by a 32-bit key via a companion index file.
//
// A database is a pair of files: a data file of concatenated record payloads,
// each followed by a single NUL byte, and a text index file with one line
// per record:
//
//	key <tab> offset <tab> length
//
// The length covers the trailing NUL. The index lists records in the order
// they were written, which defines the ordinal order for linear access.
//
// Optional sidecar files accompany a database:
//
//	<db>.dbtype     sequence type, a single ASCII digit
//	<db>.lookup     key <tab> record name, one line per record
//	<db>.meta.toml  version, type, counts and a content checksum
package seqdb

import (
	"errors"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/zeebo/wyhash"
)

// SeqDBIndexFileExt is the extension of the index file of a database.
var SeqDBIndexFileExt = ".index"

// MainVersion is the major version recorded in the metadata sidecar
var MainVersion uint8 = 0

// MinorVersion is less important
var MinorVersion uint8 = 1

// BufferSize is size of reading and writing buffer
var BufferSize = 65536

// Sequence types stored in the .dbtype sidecar.
const (
	SeqTypeAminoAcids = iota
	SeqTypeNucleotides
	SeqTypeProfile
)

// ErrInvalidIndexFormat means the index file is malformed.
var ErrInvalidIndexFormat = errors.New("seqdb: invalid index format")

// ErrBrokenFile means the data file is shorter than the index claims.
var ErrBrokenFile = errors.New("seqdb: broken data file")

// ErrVersionMismatch means version mismatch between files and program
var ErrVersionMismatch = errors.New("seqdb: version mismatch")

// ErrInvalidWorker means a worker id out of the range given to NewWriter.
var ErrInvalidWorker = errors.New("seqdb: invalid worker id")

// DBTypeFileExt is the extension of the sequence type sidecar.
var DBTypeFileExt = ".dbtype"

// LookupFileExt is the extension of the key-to-name sidecar.
var LookupFileExt = ".lookup"

// MetaFileExt is the extension of the metadata sidecar.
var MetaFileExt = ".meta.toml"

// checksumSeed seeds the wyhash checksum chain of the data file.
const checksumSeed = 42

// Meta records database-level information, saved as TOML.
type Meta struct {
	Version  string `toml:"version"`
	SeqType  int    `toml:"seq-type"`
	Records  uint64 `toml:"records"`
	Residues uint64 `toml:"residues"`
	Checksum uint64 `toml:"checksum"`
}

// WriteMeta saves database metadata next to the data file.
func WriteMeta(file string, m *Meta) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(file+MetaFileExt, data, 0644)
}

// ReadMeta loads the metadata sidecar of a database.
func ReadMeta(file string) (*Meta, error) {
	data, err := os.ReadFile(file + MetaFileExt)
	if err != nil {
		return nil, err
	}
	m := &Meta{}
	err = toml.Unmarshal(data, m)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// WriteDBType saves the sequence type sidecar.
func WriteDBType(file string, seqType int) error {
	return os.WriteFile(file+DBTypeFileExt, []byte(strconv.Itoa(seqType)), 0644)
}

// ReadDBType loads the sequence type sidecar.
// It returns SeqTypeAminoAcids if the sidecar does not exist.
func ReadDBType(file string) (int, error) {
	data, err := os.ReadFile(file + DBTypeFileExt)
	if err != nil {
		if os.IsNotExist(err) {
			return SeqTypeAminoAcids, nil
		}
		return 0, err
	}
	t, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, ErrInvalidIndexFormat
	}
	return t, nil
}

// chainChecksum folds one record payload into a running content checksum.
// Chaining record hashes keeps the result independent of buffering.
func chainChecksum(sum uint64, value []byte) uint64 {
	return wyhash.Hash(value, sum)
}
