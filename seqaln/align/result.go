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
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Evaluation modes of the aligner.
const (
	ModeFastAuto = iota
	ModeScoreOnly
	ModeScoreCov
	ModeScoreCovSeqID
)

// Result is one scored local alignment of a query against a target.
// Positions are 0-based and inclusive.
type Result struct {
	DbKey uint32
	Score int
	SeqID float64
	Eval  float64

	QStart, QEnd, QLen    int
	DbStart, DbEnd, DbLen int

	QCov  float64
	DbCov float64

	// Backtrace is the run-length encoded alignment operations over
	// {M, I, D}, e.g. "10M2D5M". Empty unless requested.
	Backtrace string
}

// CompareHits reports whether hit a sorts before hit b: by descending
// score, ties broken by ascending target key. The order is total for
// hits of one query, so results are stable across runs and worker counts.
func CompareHits(a, b *Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DbKey < b.DbKey
}

// SortHits sorts the accepted hits of one query in output order.
func SortHits(hits []Result) {
	sort.Slice(hits, func(i, j int) bool {
		return CompareHits(&hits[i], &hits[j])
	})
}

// AppendResult serializes one hit as a tab-separated line, terminated
// by a newline. The backtrace column is appended only when withBacktrace
// is true.
func AppendResult(buf *bytes.Buffer, r *Result, withBacktrace bool) {
	fmt.Fprintf(buf, "%d\t%d\t%.3f\t%e\t%d\t%d\t%d\t%d\t%d\t%d",
		r.DbKey, r.Score, r.SeqID, r.Eval,
		r.QStart, r.QEnd, r.QLen,
		r.DbStart, r.DbEnd, r.DbLen)
	if withBacktrace {
		buf.WriteByte('\t')
		buf.WriteString(r.Backtrace)
	}
	buf.WriteByte('\n')
}

// ParseResult parses one serialized hit line, with or without the
// backtrace column.
func ParseResult(line string) (*Result, error) {
	line = strings.TrimRight(line, "\r\n")
	items := strings.Split(line, "\t")
	if len(items) != 10 && len(items) != 11 {
		return nil, fmt.Errorf("align: expected 10 or 11 columns, got %d", len(items))
	}

	r := &Result{}
	key, err := strconv.ParseUint(items[0], 10, 32)
	if err != nil {
		return nil, err
	}
	r.DbKey = uint32(key)
	if r.Score, err = strconv.Atoi(items[1]); err != nil {
		return nil, err
	}
	if r.SeqID, err = strconv.ParseFloat(items[2], 64); err != nil {
		return nil, err
	}
	if r.Eval, err = strconv.ParseFloat(items[3], 64); err != nil {
		return nil, err
	}
	ints := [6]*int{&r.QStart, &r.QEnd, &r.QLen, &r.DbStart, &r.DbEnd, &r.DbLen}
	for i, p := range ints {
		if *p, err = strconv.Atoi(items[4+i]); err != nil {
			return nil, err
		}
	}
	if len(items) == 11 {
		r.Backtrace = items[10]
	}
	return r, nil
}

// CompressBacktrace run-length encodes a sequence of alignment
// operations, e.g. "MMMMMIIMM" -> "5M2I2M".
func CompressBacktrace(ops []byte) string {
	if len(ops) == 0 {
		return ""
	}
	var buf bytes.Buffer
	cur := ops[0]
	n := 1
	for _, op := range ops[1:] {
		if op == cur {
			n++
			continue
		}
		buf.WriteString(strconv.Itoa(n))
		buf.WriteByte(cur)
		cur = op
		n = 1
	}
	buf.WriteString(strconv.Itoa(n))
	buf.WriteByte(cur)
	return buf.String()
}
