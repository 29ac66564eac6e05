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
	"math"
)

// Matcher produces one scored local alignment per (query, target) pair
// under a named evaluation mode. A Matcher is owned by one worker;
// InitQuery must be called before matching targets against a new query.
type Matcher interface {
	InitQuery(q *Sequence)
	Match(t *Sequence, mode int) Result
}

// compBiasWindow is the window size of the local composition bias
// correction applied to match scores of protein queries.
const compBiasWindow = 21

// SWMatcher is a plain affine-gap Smith-Waterman (Gotoh) implementation
// of Matcher with optional backtrace.
type SWMatcher struct {
	m          *SubstitutionMatrix
	dbResidues uint64

	query    *Sequence
	corr     []int // per-query-position composition bias correction
	compBias bool

	// reusable DP rows, indexed by target position
	h []int
	e []int

	// traceback pointers, (qLen+1) x (tLen+1), grown on demand
	bt    []uint8
	btCap int

	ops []byte
}

// traceback pointers
const (
	ptrNone uint8 = iota
	ptrDiag
	ptrUp   // consumes a query residue
	ptrLeft // consumes a target residue
)

// NewSWMatcher creates a Smith-Waterman matcher. dbResidues is the total
// residue count of the target database, used for e-value estimation.
func NewSWMatcher(maxSeqLen int, m *SubstitutionMatrix, dbResidues uint64, compBias bool) *SWMatcher {
	return &SWMatcher{
		m:          m,
		dbResidues: dbResidues,
		compBias:   compBias,
		h:          make([]int, maxSeqLen+1),
		e:          make([]int, maxSeqLen+1),
	}
}

// InitQuery prepares the matcher for a new query sequence.
func (ma *SWMatcher) InitQuery(q *Sequence) {
	ma.query = q

	if !ma.compBias || q.SeqType == Nucleotides {
		ma.corr = nil
		return
	}

	// local composition bias: subtract, per position, the average score
	// of the residue against its sequence neighborhood
	if cap(ma.corr) < q.L {
		ma.corr = make([]int, q.L)
	}
	ma.corr = ma.corr[:q.L]
	half := compBiasWindow / 2
	for i := 0; i < q.L; i++ {
		lo, hi := i-half, i+half
		if lo < 0 {
			lo = 0
		}
		if hi >= q.L {
			hi = q.L - 1
		}
		var sum, n int
		for j := lo; j <= hi; j++ {
			if j == i {
				continue
			}
			sum += ma.m.Score(q.Seq[i], q.Seq[j])
			n++
		}
		if n > 0 {
			ma.corr[i] = -int(math.Round(float64(sum) / float64(n)))
		}
	}
}

// Match aligns the current query against one target.
// The returned positions are 0-based and inclusive.
func (ma *SWMatcher) Match(t *Sequence, mode int) Result {
	q := ma.query
	res := Result{
		DbKey: t.Key,
		QLen:  q.L,
		DbLen: t.L,
	}

	traceback := mode == ModeScoreCov || mode == ModeScoreCovSeqID
	if traceback {
		need := (q.L + 1) * (t.L + 1)
		if ma.btCap < need {
			ma.bt = make([]uint8, need)
			ma.btCap = need
		}
		for i := range ma.bt[:need] {
			ma.bt[i] = ptrNone
		}
	}

	gapOpen, gapExt := ma.m.GapOpen, ma.m.GapExtend
	cols := t.L + 1

	h, e := ma.h[:cols], ma.e[:cols]
	for j := 0; j < cols; j++ {
		h[j] = 0
		e[j] = 0
	}

	var best, bestI, bestJ int
	scores := ma.m.Scores
	for i := 1; i <= q.L; i++ {
		qs := scores[q.Seq[i-1]]
		var corr int
		if ma.corr != nil {
			corr = ma.corr[i-1]
		}

		var diag, f int
		diag, h[0] = h[0], 0
		for j := 1; j <= t.L; j++ {
			// e: vertical gap consuming query residues,
			// f: horizontal gap consuming target residues
			eVal := h[j] - gapOpen
			if v := e[j] - gapExt; v > eVal {
				eVal = v
			}
			e[j] = eVal

			fVal := h[j-1] - gapOpen
			if v := f - gapExt; v > fVal {
				fVal = v
			}
			f = fVal

			match := diag + qs[t.Seq[j-1]] + corr

			score := 0
			ptr := ptrNone
			if match > score {
				score = match
				ptr = ptrDiag
			}
			if eVal > score {
				score = eVal
				ptr = ptrUp
			}
			if fVal > score {
				score = fVal
				ptr = ptrLeft
			}

			diag = h[j]
			h[j] = score
			if traceback {
				ma.bt[i*cols+j] = ptr
			}

			if score > best {
				best = score
				bestI = i
				bestJ = j
			}
		}
	}

	res.Score = best
	res.Eval = ma.evalue(best, q.L)
	res.QEnd = maxInt(bestI-1, 0)
	res.DbEnd = maxInt(bestJ-1, 0)

	if !traceback {
		return res
	}

	// walk the pointers back to the alignment start
	ma.ops = ma.ops[:0]
	var matches int
	i, j := bestI, bestJ
	for i > 0 && j > 0 {
		switch ma.bt[i*cols+j] {
		case ptrDiag:
			ma.ops = append(ma.ops, 'M')
			if q.Seq[i-1] == t.Seq[j-1] {
				matches++
			}
			i--
			j--
		case ptrUp:
			ma.ops = append(ma.ops, 'I')
			i--
		case ptrLeft:
			ma.ops = append(ma.ops, 'D')
			j--
		default:
			goto done
		}
	}
done:
	res.QStart = i
	res.DbStart = j

	if q.L > 0 {
		res.QCov = float64(res.QEnd-res.QStart+1) / float64(q.L)
	}
	if t.L > 0 {
		res.DbCov = float64(res.DbEnd-res.DbStart+1) / float64(t.L)
	}

	if mode == ModeScoreCovSeqID {
		if n := len(ma.ops); n > 0 {
			res.SeqID = float64(matches) / float64(n)
		}
		reverseOps(ma.ops)
		res.Backtrace = CompressBacktrace(ma.ops)
	}

	return res
}

// evalue estimates the expected number of chance hits of at least the
// given score, via the bit score of the gapped Karlin-Altschul model.
func (ma *SWMatcher) evalue(score int, qLen int) float64 {
	bitScore := (ma.m.Lambda*float64(score) - ma.m.LogK) / math.Ln2
	return float64(ma.dbResidues) * float64(qLen) * math.Exp2(-bitScore)
}

func reverseOps(ops []byte) {
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
