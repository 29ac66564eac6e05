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
	"strings"
	"testing"
)

func TestSortHits(t *testing.T) {
	hits := []Result{
		{DbKey: 5, Score: 100},
		{DbKey: 7, Score: 200},
		{DbKey: 2, Score: 100},
	}
	SortHits(hits)

	want := []uint32{7, 2, 5}
	for i, k := range want {
		if hits[i].DbKey != k {
			t.Fatalf("hit %d: key %d, want %d", i, hits[i].DbKey, k)
		}
	}

	// scores are non-increasing, equal scores ordered by ascending key
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatal("scores not non-increasing")
		}
		if hits[i].Score == hits[i-1].Score && hits[i].DbKey <= hits[i-1].DbKey {
			t.Fatal("equal scores not ordered by ascending key")
		}
	}
}

func TestAppendResult(t *testing.T) {
	r := Result{
		DbKey: 42,
		Score: 123,
		SeqID: 0.98765,
		Eval:  1e-10,

		QStart: 0, QEnd: 9, QLen: 10,
		DbStart: 5, DbEnd: 14, DbLen: 20,

		Backtrace: "10M",
	}

	var buf bytes.Buffer
	AppendResult(&buf, &r, false)
	want := "42\t123\t0.988\t1.000000e-10\t0\t9\t10\t5\t14\t20\n"
	if buf.String() != want {
		t.Errorf("line = %q, want %q", buf.String(), want)
	}

	buf.Reset()
	AppendResult(&buf, &r, true)
	want = "42\t123\t0.988\t1.000000e-10\t0\t9\t10\t5\t14\t20\t10M\n"
	if buf.String() != want {
		t.Errorf("line with backtrace = %q, want %q", buf.String(), want)
	}
}

func TestResultRoundTrip(t *testing.T) {
	lines := []string{
		"42\t123\t0.988\t1.000000e-10\t0\t9\t10\t5\t14\t20",
		"0\t0\t0.000\t1.000000e+00\t0\t0\t0\t0\t0\t0",
		"7\t55\t1.000\t3.140000e-07\t1\t8\t9\t2\t9\t12\t3M2D5M",
	}
	for _, line := range lines {
		r, err := ParseResult(line)
		if err != nil {
			t.Fatalf("parsing %q: %s", line, err)
		}
		var buf bytes.Buffer
		AppendResult(&buf, r, strings.Count(line, "\t") == 10)
		if got := strings.TrimRight(buf.String(), "\n"); got != line {
			t.Errorf("round trip: %q != %q", got, line)
		}
	}
}

func TestParseResultInvalid(t *testing.T) {
	for _, line := range []string{
		"",
		"1\t2\t3",
		"x\t123\t0.988\t1.000000e-10\t0\t9\t10\t5\t14\t20",
	} {
		if _, err := ParseResult(line); err == nil {
			t.Errorf("expected an error for %q", line)
		}
	}
}

func TestCompressBacktrace(t *testing.T) {
	tests := []struct {
		ops  string
		want string
	}{
		{"", ""},
		{"M", "1M"},
		{"MMMMM", "5M"},
		{"MMMIIMMD", "3M2I2M1D"},
	}
	for _, test := range tests {
		if got := CompressBacktrace([]byte(test.ops)); got != test.want {
			t.Errorf("CompressBacktrace(%q) = %q, want %q", test.ops, got, test.want)
		}
	}
}
