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

package align

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBlosum62Builtin(t *testing.T) {
	m, err := SubstitutionMatrixFromFile("", 0.0, 2.0)
	if err != nil {
		t.Fatalf("loading built-in matrix: %s", err)
	}

	n := len(m.Alphabet)
	if n != len(AminoAcidAlphabet) {
		t.Fatalf("alphabet size: %d != %d", n, len(AminoAcidAlphabet))
	}

	// scale 2.0, bias 0.0
	if s := m.Score(m.AA2Int['A'], m.AA2Int['A']); s != 8 {
		t.Errorf("score(A, A) = %d, want 8", s)
	}
	if s := m.Score(m.AA2Int['W'], m.AA2Int['W']); s != 22 {
		t.Errorf("score(W, W) = %d, want 22", s)
	}
	if s := m.Score(m.AA2Int['A'], m.AA2Int['R']); s != -2 {
		t.Errorf("score(A, R) = %d, want -2", s)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if m.Scores[i][j] != m.Scores[j][i] {
				t.Fatalf("matrix not symmetric at %c, %c", m.Alphabet[i], m.Alphabet[j])
			}
		}
	}

	// lower case and unknown residues
	if m.AA2Int['a'] != m.AA2Int['A'] {
		t.Error("lower case not mapped to the same symbol")
	}
	if m.AA2Int['B'] != int8(n-1) || m.AA2Int['1'] != int8(n-1) {
		t.Error("unknown residues should map to the wildcard symbol")
	}
}

func TestSubstitutionMatrixFromFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "blosum62.out")
	if err := os.WriteFile(file, []byte(blosum62), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := SubstitutionMatrixFromFile(file, 0.0, 1.0)
	if err != nil {
		t.Fatalf("loading matrix file: %s", err)
	}
	if s := m.Score(m.AA2Int['A'], m.AA2Int['A']); s != 4 {
		t.Errorf("score(A, A) = %d, want 4", s)
	}

	// bias shifts every score before scaling
	m2, err := SubstitutionMatrixFromFile(file, 1.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if s := m2.Score(m2.AA2Int['A'], m2.AA2Int['A']); s != 10 {
		t.Errorf("score(A, A) with bias = %d, want 10", s)
	}
}

func TestSubstitutionMatrixFromFileInvalid(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.out")
	if err := os.WriteFile(file, []byte("# only comments\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := SubstitutionMatrixFromFile(file, 0.0, 2.0); err == nil {
		t.Error("expected an error for a matrix without data")
	}
}

func TestNucleotideMatrix(t *testing.T) {
	m := NucleotideMatrix()

	if s := m.Score(m.AA2Int['A'], m.AA2Int['A']); s != 2 {
		t.Errorf("score(A, A) = %d, want 2", s)
	}
	if s := m.Score(m.AA2Int['A'], m.AA2Int['C']); s != -3 {
		t.Errorf("score(A, C) = %d, want -3", s)
	}
	if s := m.Score(m.AA2Int['A'], m.AA2Int['N']); s != 0 {
		t.Errorf("score(A, N) = %d, want 0", s)
	}
	if m.AA2Int['t'] != m.AA2Int['T'] {
		t.Error("lower case not mapped to the same symbol")
	}
}
