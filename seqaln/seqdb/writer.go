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
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/twotwotwo/sorts/sortutil"
)

// Writer appends records to a database through per-worker shards.
//
// Each worker owns one shard data file (<db>.N) and an in-memory index of
// its entries, so no locking is needed on the write path. Close unifies the shards into the
// final (data, index) pair, ordering records by ascending key so that the
// result does not depend on how work was scheduled across workers.
type Writer struct {
	file      string
	indexFile string

	fhs     []*os.File
	ws      []*bufio.Writer
	offsets []uint64
	entries [][]Entry
}

// NewWriter creates a database writer with the given number of shards.
func NewWriter(file string, indexFile string, workers int) (*Writer, error) {
	if workers < 1 {
		workers = 1
	}
	if indexFile == "" {
		indexFile = file + SeqDBIndexFileExt
	}
	w := &Writer{
		file:      file,
		indexFile: indexFile,
		fhs:       make([]*os.File, workers),
		ws:        make([]*bufio.Writer, workers),
		offsets:   make([]uint64, workers),
		entries:   make([][]Entry, workers),
	}
	for i := 0; i < workers; i++ {
		fh, err := os.Create(shardName(file, i))
		if err != nil {
			return nil, errors.Wrap(err, shardName(file, i))
		}
		w.fhs[i] = fh
		w.ws[i] = bufio.NewWriterSize(fh, BufferSize)
		w.entries[i] = make([]Entry, 0, 1024)
	}
	return w, nil
}

func shardName(file string, worker int) string {
	return file + "." + strconv.Itoa(worker)
}

// Write appends one record to the shard owned by the given worker.
// A record may be empty; it still gets an index entry.
func (w *Writer) Write(key uint32, value []byte, worker int) error {
	if worker < 0 || worker >= len(w.ws) {
		return ErrInvalidWorker
	}
	bw := w.ws[worker]
	if _, err := bw.Write(value); err != nil {
		return errors.Wrap(err, shardName(w.file, worker))
	}
	if err := bw.WriteByte(0); err != nil {
		return errors.Wrap(err, shardName(w.file, worker))
	}
	w.entries[worker] = append(w.entries[worker], Entry{
		Key:    key,
		Offset: w.offsets[worker],
		Length: uint64(len(value)) + 1,
	})
	w.offsets[worker] += uint64(len(value)) + 1
	return nil
}

// Close flushes all shards, merges them into the final database,
// writes the metadata sidecar, and removes the shard files.
func (w *Writer) Close() error {
	pairs := make([][2]string, len(w.fhs))
	for i, fh := range w.fhs {
		if err := w.ws[i].Flush(); err != nil {
			return errors.Wrap(err, shardName(w.file, i))
		}
		if err := fh.Close(); err != nil {
			return errors.Wrap(err, shardName(w.file, i))
		}
		pairs[i] = [2]string{shardName(w.file, i), ""}
	}

	err := mergeShards(w.file, w.indexFile, pairs, w.entries)
	if err != nil {
		return err
	}

	for i := range w.fhs {
		os.Remove(shardName(w.file, i))
	}
	return nil
}

// MergeResults merges the outputs of several completed writers,
// e.g., the per-rank temporary databases of a distributed run, into
// one final database. Source index files are loaded from disk.
func MergeResults(file string, indexFile string, pairs [][2]string) error {
	if indexFile == "" {
		indexFile = file + SeqDBIndexFileExt
	}
	entries := make([][]Entry, len(pairs))
	for i, pair := range pairs {
		idxFile := pair[1]
		if idxFile == "" {
			idxFile = pair[0] + SeqDBIndexFileExt
		}
		r := &Reader{file: pair[0], indexFile: idxFile}
		if err := r.readIndex(); err != nil {
			return err
		}
		entries[i] = r.entries
	}
	return mergeShards(file, indexFile, pairs, entries)
}

// mergeShards rewrites the records of all source files into the final
// database, ordered by ascending key. Ties between equal keys keep the
// source order, so the result is deterministic for any worker count.
func mergeShards(file string, indexFile string, pairs [][2]string, entries [][]Entry) error {
	var total int
	for _, es := range entries {
		total += len(es)
	}

	// source ordinals packed under their keys for a deterministic order
	order := make([]uint64, 0, total)
	flat := make([]*Entry, 0, total)
	srcOf := make([]int, 0, total)
	for i, es := range entries {
		for j := range es {
			order = append(order, uint64(es[j].Key)<<32|uint64(len(flat)))
			flat = append(flat, &es[j])
			srcOf = append(srcOf, i)
		}
	}
	sortutil.Uint64s(order)

	fh, err := os.Create(file)
	if err != nil {
		return errors.Wrap(err, file)
	}
	bw := bufio.NewWriterSize(fh, BufferSize)

	fhi, err := os.Create(indexFile)
	if err != nil {
		fh.Close()
		return errors.Wrap(err, indexFile)
	}
	bwi := bufio.NewWriterSize(fhi, BufferSize)

	srcs := make([]*os.File, len(pairs))
	defer func() {
		for _, s := range srcs {
			if s != nil {
				s.Close()
			}
		}
	}()

	var offset uint64
	var checksum uint64 = checksumSeed
	var residues uint64
	buf := make([]byte, 0, BufferSize)
	for _, o := range order {
		i := int(o & 0xffffffff)
		e := flat[i]
		src := srcOf[i]

		if srcs[src] == nil {
			srcs[src], err = os.Open(pairs[src][0])
			if err != nil {
				return errors.Wrap(err, pairs[src][0])
			}
		}

		if uint64(cap(buf)) < e.Length {
			buf = make([]byte, e.Length)
		}
		buf = buf[:e.Length]
		if _, err = srcs[src].ReadAt(buf, int64(e.Offset)); err != nil {
			if err == io.EOF && e.Length == 0 {
				err = nil
			} else {
				return errors.Wrap(err, pairs[src][0])
			}
		}
		if _, err = bw.Write(buf); err != nil {
			return errors.Wrap(err, file)
		}

		if e.Length > 0 {
			checksum = chainChecksum(checksum, buf[:e.Length-1])
			residues += e.Length - 1
		}

		fmt.Fprintf(bwi, "%d\t%d\t%d\n", e.Key, offset, e.Length)
		offset += e.Length
	}

	if err = bw.Flush(); err != nil {
		return errors.Wrap(err, file)
	}
	if err = fh.Close(); err != nil {
		return errors.Wrap(err, file)
	}
	if err = bwi.Flush(); err != nil {
		return errors.Wrap(err, indexFile)
	}
	if err = fhi.Close(); err != nil {
		return errors.Wrap(err, indexFile)
	}

	return WriteMeta(file, &Meta{
		Version:  fmt.Sprintf("%d.%d", MainVersion, MinorVersion),
		Records:  uint64(total),
		Residues: residues,
		// TOML integers are signed 64-bit, so the top bit is dropped
		Checksum: checksum &^ (1 << 63),
	})
}

// RemoveDB removes the data and index files of a database together with
// all known sidecars and leftover shard files.
func RemoveDB(file string) error {
	var firstErr error
	rm := func(f string) {
		err := os.Remove(f)
		if err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.Wrap(err, f)
		}
	}

	rm(file)
	rm(file + SeqDBIndexFileExt)
	rm(file + DBTypeFileExt)
	rm(file + LookupFileExt)
	rm(file + MetaFileExt)

	// leftover shards of an interrupted run
	for i := 0; ; i++ {
		shard := shardName(file, i)
		if _, err := os.Stat(shard); err != nil {
			break
		}
		rm(shard)
		rm(shard + SeqDBIndexFileExt)
	}

	return firstErr
}
