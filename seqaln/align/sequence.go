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
	"fmt"
)

// Sequence types.
const (
	AminoAcids = iota
	Nucleotides
	HMMProfile
)

// Sequence is a reusable encoded-sequence buffer owned by one worker.
// Profiles are read as plain amino acid text here.
type Sequence struct {
	Key uint32
	L   int
	Seq []int8 // encoded symbols, Seq[:L]

	SeqType  int
	CompBias bool // passed through to the aligner

	m         *SubstitutionMatrix
	maxSeqLen int
}

// NewSequence creates an encoding buffer with the given capacity.
func NewSequence(maxSeqLen int, m *SubstitutionMatrix, seqType int, compBias bool) *Sequence {
	return &Sequence{
		Seq:       make([]int8, 0, maxSeqLen),
		SeqType:   seqType,
		CompBias:  compBias,
		m:         m,
		maxSeqLen: maxSeqLen,
	}
}

// Map encodes raw sequence text into the buffer, replacing the previous
// content. Trailing newlines and NUL bytes are ignored; other whitespace
// inside the record is skipped.
func (s *Sequence) Map(key uint32, raw []byte) error {
	for len(raw) > 0 {
		switch raw[len(raw)-1] {
		case '\n', '\r', 0:
			raw = raw[:len(raw)-1]
			continue
		}
		break
	}

	s.Key = key
	s.Seq = s.Seq[:0]
	aa2int := &s.m.AA2Int
	for _, b := range raw {
		switch b {
		case '\n', '\r', '\t', ' ', 0:
			continue
		}
		if len(s.Seq) == s.maxSeqLen {
			return fmt.Errorf("align: sequence %d longer than the maximum sequence length %d", key, s.maxSeqLen)
		}
		s.Seq = append(s.Seq, aa2int[b])
	}
	s.L = len(s.Seq)
	return nil
}
