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

func mapSeq(t *testing.T, m *SubstitutionMatrix, key uint32, seqType int, raw string) *Sequence {
	t.Helper()
	s := NewSequence(1024, m, seqType, false)
	if err := s.Map(key, []byte(raw)); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSWMatcherIdentity(t *testing.T) {
	m, err := SubstitutionMatrixFromFile("", 0.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	const text = "ARNDCQEGHILKMFPSTWYV"
	q := mapSeq(t, m, 1, AminoAcids, text)
	d := mapSeq(t, m, 2, AminoAcids, text)

	ma := NewSWMatcher(1024, m, 1000, false)
	ma.InitQuery(q)
	res := ma.Match(d, ModeScoreCovSeqID)

	// sum of the doubled BLOSUM62 diagonal of the 20 standard residues
	if res.Score != 232 {
		t.Errorf("score = %d, want 232", res.Score)
	}
	if res.SeqID != 1.0 {
		t.Errorf("seqId = %f, want 1", res.SeqID)
	}
	if res.QCov != 1.0 || res.DbCov != 1.0 {
		t.Errorf("coverage = %f, %f, want 1, 1", res.QCov, res.DbCov)
	}
	if res.QStart != 0 || res.QEnd != len(text)-1 {
		t.Errorf("query range = %d-%d, want 0-%d", res.QStart, res.QEnd, len(text)-1)
	}
	if res.DbStart != 0 || res.DbEnd != len(text)-1 {
		t.Errorf("target range = %d-%d, want 0-%d", res.DbStart, res.DbEnd, len(text)-1)
	}
	if res.QLen != len(text) || res.DbLen != len(text) {
		t.Errorf("lengths = %d, %d, want %d", res.QLen, res.DbLen, len(text))
	}
	if res.Backtrace != "20M" {
		t.Errorf("backtrace = %q, want 20M", res.Backtrace)
	}
	if res.DbKey != 2 {
		t.Errorf("dbKey = %d, want 2", res.DbKey)
	}
	if res.Eval <= 0 {
		t.Errorf("eval = %g, want > 0", res.Eval)
	}
}

func TestSWMatcherSubsequence(t *testing.T) {
	m, err := SubstitutionMatrixFromFile("", 0.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	// the query matches the middle of the target
	q := mapSeq(t, m, 1, AminoAcids, "RNDCQ")
	d := mapSeq(t, m, 2, AminoAcids, "GGGGGRNDCQGGGGG")

	ma := NewSWMatcher(1024, m, 1000, false)
	ma.InitQuery(q)
	res := ma.Match(d, ModeScoreCovSeqID)

	if res.QCov != 1.0 {
		t.Errorf("qcov = %f, want 1", res.QCov)
	}
	if res.DbCov >= 1.0 {
		t.Errorf("dbcov = %f, want < 1", res.DbCov)
	}
	if res.QStart != 0 || res.QEnd != 4 {
		t.Errorf("query range = %d-%d, want 0-4", res.QStart, res.QEnd)
	}
	if res.DbStart != 5 || res.DbEnd != 9 {
		t.Errorf("target range = %d-%d, want 5-9", res.DbStart, res.DbEnd)
	}
	if res.SeqID != 1.0 {
		t.Errorf("seqId = %f, want 1", res.SeqID)
	}
	if res.Backtrace != "5M" {
		t.Errorf("backtrace = %q, want 5M", res.Backtrace)
	}
}

func TestSWMatcherScoreOnly(t *testing.T) {
	m, err := SubstitutionMatrixFromFile("", 0.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	q := mapSeq(t, m, 1, AminoAcids, "RNDCQ")
	d := mapSeq(t, m, 2, AminoAcids, "RNDCQ")

	ma := NewSWMatcher(1024, m, 1000, false)
	ma.InitQuery(q)
	res := ma.Match(d, ModeScoreOnly)

	if res.Score <= 0 {
		t.Errorf("score = %d, want > 0", res.Score)
	}
	if res.SeqID != 0 || res.QCov != 0 || res.DbCov != 0 {
		t.Errorf("score-only mode should leave seqId and coverage at 0, got %f, %f, %f",
			res.SeqID, res.QCov, res.DbCov)
	}
	if res.Backtrace != "" {
		t.Errorf("score-only mode should not produce a backtrace, got %q", res.Backtrace)
	}
}

func TestSWMatcherGap(t *testing.T) {
	m, err := SubstitutionMatrixFromFile("", 0.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}

	// the target lacks four query residues in the middle, far enough
	// from the ends that bridging the gap beats the flanks alone
	q := mapSeq(t, m, 1, AminoAcids, "WWWWHHHWWKKKKWWHHHWWWW")
	d := mapSeq(t, m, 2, AminoAcids, "WWWWHHHWWWWHHHWWWW")

	ma := NewSWMatcher(1024, m, 1000, false)
	ma.InitQuery(q)
	res := ma.Match(d, ModeScoreCovSeqID)

	if res.QCov != 1.0 {
		t.Errorf("qcov = %f, want 1", res.QCov)
	}
	if res.DbCov != 1.0 {
		t.Errorf("dbcov = %f, want 1", res.DbCov)
	}
	if res.Backtrace != "9M4I9M" {
		t.Errorf("backtrace = %q, want 9M4I9M", res.Backtrace)
	}
}

func TestSWMatcherNucleotide(t *testing.T) {
	m := NucleotideMatrix()

	q := mapSeq(t, m, 1, Nucleotides, "ACGTACGT")
	d := mapSeq(t, m, 2, Nucleotides, "ACGTACGT")

	ma := NewSWMatcher(1024, m, 1000, false)
	ma.InitQuery(q)
	res := ma.Match(d, ModeScoreCovSeqID)

	if res.Score != 16 {
		t.Errorf("score = %d, want 16", res.Score)
	}
	if res.SeqID != 1.0 {
		t.Errorf("seqId = %f, want 1", res.SeqID)
	}
	if res.Backtrace != "8M" {
		t.Errorf("backtrace = %q, want 8M", res.Backtrace)
	}
}

func TestSWMatcherEvalueDecreasesWithScore(t *testing.T) {
	m, err := SubstitutionMatrixFromFile("", 0.0, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	ma := NewSWMatcher(1024, m, 1000000, false)
	if e1, e2 := ma.evalue(50, 100), ma.evalue(100, 100); e1 <= e2 {
		t.Errorf("evalue(50) = %g should be greater than evalue(100) = %g", e1, e2)
	}
}
