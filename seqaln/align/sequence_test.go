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
	"testing"
)

func TestSequenceMap(t *testing.T) {
	m, err := SubstitutionMatrixFromFile("", 0.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	s := NewSequence(16, m, AminoAcids, false)

	if err = s.Map(7, []byte("MKTAY\n")); err != nil {
		t.Fatal(err)
	}
	if s.Key != 7 || s.L != 5 {
		t.Errorf("key = %d, L = %d, want 7, 5", s.Key, s.L)
	}
	if s.Seq[0] != m.AA2Int['M'] || s.Seq[4] != m.AA2Int['Y'] {
		t.Error("encoded symbols do not match the matrix mapping")
	}

	// database records may carry trailing NUL bytes and inner line breaks
	if err = s.Map(8, []byte("MKT\nAY\x00")); err != nil {
		t.Fatal(err)
	}
	if s.L != 5 {
		t.Errorf("L = %d, want 5", s.L)
	}

	// buffers are reused across calls
	if err = s.Map(9, []byte("GG")); err != nil {
		t.Fatal(err)
	}
	if s.L != 2 {
		t.Errorf("L = %d, want 2", s.L)
	}

	if err = s.Map(10, []byte("MKTAYMKTAYMKTAYMKTAY")); err == nil {
		t.Error("expected an error for a sequence over the buffer capacity")
	}
}
