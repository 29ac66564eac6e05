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
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestDB(t *testing.T, file string, workers int, records []struct {
	key    uint32
	value  string
	worker int
}) {
	t.Helper()
	w, err := NewWriter(file, "", workers)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range records {
		if err = w.Write(r.key, []byte(r.value), r.worker); err != nil {
			t.Fatal(err)
		}
	}
	if err = w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "db")

	records := []struct {
		key    uint32
		value  string
		worker int
	}{
		{3, "MKTAYIAKQR", 0},
		{1, "ACDEFGHIKL", 0},
		{2, "", 0},
		{10, "WYV", 0},
	}
	writeTestDB(t, file, 1, records)

	r, err := Open(file, "")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.Size() != 4 {
		t.Fatalf("size = %d, want 4", r.Size())
	}

	// records are ordered by ascending key
	wantKeys := []uint32{1, 2, 3, 10}
	for i, k := range wantKeys {
		if r.KeyAt(uint64(i)) != k {
			t.Errorf("key at %d = %d, want %d", i, r.KeyAt(uint64(i)), k)
		}
	}

	if v := r.DataByKey(3); string(v) != "MKTAYIAKQR" {
		t.Errorf("value of key 3 = %q", v)
	}
	if v := r.DataByKey(2); v == nil || len(v) != 0 {
		t.Errorf("value of key 2 should be empty, not nil, got %v", v)
	}
	if v := r.DataByKey(99); v != nil {
		t.Errorf("missing key should return nil, got %q", v)
	}
	if v := r.DataByOrdinal(3); string(v) != "WYV" {
		t.Errorf("value at ordinal 3 = %q", v)
	}
	if r.LengthAt(0) != 10 {
		t.Errorf("length at 0 = %d, want 10", r.LengthAt(0))
	}
	if r.Residues() != 23 {
		t.Errorf("residues = %d, want 23", r.Residues())
	}
}

func TestReaderRemapAndReadAll(t *testing.T) {
	file := filepath.Join(t.TempDir(), "db")
	writeTestDB(t, file, 1, []struct {
		key    uint32
		value  string
		worker int
	}{
		{1, "ACGT", 0},
		{2, "GGCC", 0},
	})

	r, err := Open(file, "")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err = r.Remap(); err != nil {
		t.Fatal(err)
	}
	if v := r.DataByKey(1); string(v) != "ACGT" {
		t.Errorf("value after remap = %q", v)
	}

	if err = r.ReadAllIntoMemory(); err != nil {
		t.Fatal(err)
	}
	if v := r.DataByKey(2); string(v) != "GGCC" {
		t.Errorf("value after reading into memory = %q", v)
	}
	// remapping a memory-resident reader is a no-op
	if err = r.Remap(); err != nil {
		t.Fatal(err)
	}
}

func TestWriterDeterministicAcrossWorkers(t *testing.T) {
	dir := t.TempDir()
	file1 := filepath.Join(dir, "db1")
	file3 := filepath.Join(dir, "db3")

	writeTestDB(t, file1, 1, []struct {
		key    uint32
		value  string
		worker int
	}{
		{5, "EEEEE", 0},
		{1, "AAAAA", 0},
		{3, "CCCCC", 0},
		{2, "BBBBB", 0},
	})

	// same records, spread over three shards in a different order
	writeTestDB(t, file3, 3, []struct {
		key    uint32
		value  string
		worker int
	}{
		{2, "BBBBB", 2},
		{3, "CCCCC", 0},
		{1, "AAAAA", 1},
		{5, "EEEEE", 1},
	})

	for _, ext := range []string{"", SeqDBIndexFileExt} {
		d1, err := os.ReadFile(file1 + ext)
		if err != nil {
			t.Fatal(err)
		}
		d3, err := os.ReadFile(file3 + ext)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(d1, d3) {
			t.Errorf("file %q differs between worker counts:\n%q\n%q", ext, d1, d3)
		}
	}

	// shard files are removed after merging
	if _, err := os.Stat(file3 + ".0"); !os.IsNotExist(err) {
		t.Error("shard file left behind")
	}

	m1, err := ReadMeta(file1)
	if err != nil {
		t.Fatal(err)
	}
	m3, err := ReadMeta(file3)
	if err != nil {
		t.Fatal(err)
	}
	if m1.Checksum != m3.Checksum {
		t.Errorf("checksums differ: %d != %d", m1.Checksum, m3.Checksum)
	}
	if m1.Records != 4 || m1.Residues != 20 {
		t.Errorf("meta = %+v", m1)
	}
}

func TestMergeResults(t *testing.T) {
	dir := t.TempDir()
	part0 := filepath.Join(dir, "out.0")
	part1 := filepath.Join(dir, "out.1")
	out := filepath.Join(dir, "out")

	writeTestDB(t, part0, 1, []struct {
		key    uint32
		value  string
		worker int
	}{
		{1, "first\n", 0},
		{2, "second\n", 0},
	})
	writeTestDB(t, part1, 1, []struct {
		key    uint32
		value  string
		worker int
	}{
		{3, "third\n", 0},
		{4, "", 0},
	})

	err := MergeResults(out, "", [][2]string{
		{part0, ""},
		{part1, ""},
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := Open(out, "")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if r.Size() != 4 {
		t.Fatalf("size = %d, want 4", r.Size())
	}
	for i, want := range []string{"first\n", "second\n", "third\n", ""} {
		if v := r.DataByOrdinal(uint64(i)); string(v) != want {
			t.Errorf("record %d = %q, want %q", i, v, want)
		}
	}
}

func TestDBTypeSidecar(t *testing.T) {
	file := filepath.Join(t.TempDir(), "db")

	if tp, err := ReadDBType(file); err != nil || tp != SeqTypeAminoAcids {
		t.Errorf("missing sidecar should default to amino acids, got %d, %v", tp, err)
	}

	if err := WriteDBType(file, SeqTypeNucleotides); err != nil {
		t.Fatal(err)
	}
	tp, err := ReadDBType(file)
	if err != nil {
		t.Fatal(err)
	}
	if tp != SeqTypeNucleotides {
		t.Errorf("seq type = %d, want %d", tp, SeqTypeNucleotides)
	}
}

func TestRemoveDB(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "db")

	writeTestDB(t, file, 1, []struct {
		key    uint32
		value  string
		worker int
	}{
		{1, "ACGT", 0},
	})
	if err := WriteDBType(file, SeqTypeNucleotides); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file+LookupFileExt, []byte("1\tseq1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// a leftover shard of an interrupted run
	if err := os.WriteFile(file+".0", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RemoveDB(file); err != nil {
		t.Fatal(err)
	}

	left, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Errorf("files left behind: %v", left)
	}
}

func TestOpenBrokenDB(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "db")
	if err := os.WriteFile(file, []byte("short"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file+SeqDBIndexFileExt, []byte("1\t0\t100\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(file, ""); err == nil {
		t.Error("expected an error for a truncated data file")
	}
}
