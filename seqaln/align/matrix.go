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
	"bufio"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shenwei356/xopen"
)

// ErrInvalidMatrixFormat means a scoring matrix file could not be parsed.
var ErrInvalidMatrixFormat = errors.New("align: invalid scoring matrix format")

// SubstitutionMatrix holds residue scores and the encoding tables
// mapping raw sequence text to the aligner's alphabet.
type SubstitutionMatrix struct {
	Name     string
	Alphabet []byte
	AA2Int   [256]int8 // raw byte -> encoded symbol; unknowns map to the last symbol
	Int2AA   []byte

	Scores [][]int // Scores[a][b] for encoded symbols a, b

	GapOpen   int
	GapExtend int

	// Karlin-Altschul parameters for e-value estimation
	Lambda float64
	LogK   float64
}

// Gapped Karlin-Altschul parameters. BLOSUM62 values are the standard
// gapped (11,1) estimates; the nucleotide values follow blastn.
const (
	blosumLambda = 0.267
	blosumK      = 0.041

	nuclLambda = 0.625
	nuclK      = 0.41
)

func newMatrix(name string, alphabet string, gapOpen, gapExtend int, lambda, k float64) *SubstitutionMatrix {
	m := &SubstitutionMatrix{
		Name:      name,
		Alphabet:  []byte(alphabet),
		Int2AA:    []byte(alphabet),
		GapOpen:   gapOpen,
		GapExtend: gapExtend,
		Lambda:    lambda,
		LogK:      math.Log(k),
	}

	n := len(m.Alphabet)
	unknown := int8(n - 1) // 'X' or 'N', always the last symbol
	for i := range m.AA2Int {
		m.AA2Int[i] = unknown
	}
	for i, aa := range m.Alphabet {
		m.AA2Int[aa] = int8(i)
		m.AA2Int[aa|0x20] = int8(i) // lower case
	}

	m.Scores = make([][]int, n)
	for i := range m.Scores {
		m.Scores[i] = make([]int, n)
	}
	return m
}

// NucleotideAlphabet and AminoAcidAlphabet end with the wildcard symbol.
const (
	AminoAcidAlphabet  = "ARNDCQEGHILKMFPSTWYVX"
	NucleotideAlphabet = "ACGTN"
)

// NucleotideMatrix returns the built-in nucleotide scoring matrix:
// +2 for a match, -3 for a mismatch, 0 against the wildcard.
func NucleotideMatrix() *SubstitutionMatrix {
	m := newMatrix("nucleotide", NucleotideAlphabet, 5, 2, nuclLambda, nuclK)
	n := len(m.Alphabet)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			switch {
			case i == n-1 || j == n-1:
				m.Scores[i][j] = 0
			case i == j:
				m.Scores[i][j] = 2
			default:
				m.Scores[i][j] = -3
			}
		}
	}
	return m
}

// SubstitutionMatrixFromFile loads a BLOSUM-style matrix in the NCBI text
// format. Scores are transformed as round(scale * (score + bias)).
// An empty path loads the built-in BLOSUM62 table.
func SubstitutionMatrixFromFile(file string, bias float64, scale float64) (*SubstitutionMatrix, error) {
	name := file
	var scanner *bufio.Scanner
	if file == "" {
		name = "BLOSUM62"
		scanner = bufio.NewScanner(strings.NewReader(blosum62))
	} else {
		fh, err := xopen.Ropen(file)
		if err != nil {
			return nil, err
		}
		defer fh.Close()
		scanner = bufio.NewScanner(fh)
	}

	m := newMatrix(name, AminoAcidAlphabet, 11, 1, blosumLambda, blosumK)

	var cols []byte
	fields := make([]string, 0, 32)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		fields = fields[:0]
		for _, f := range strings.Fields(line) {
			fields = append(fields, f)
		}

		if cols == nil { // header row with residue labels
			cols = make([]byte, 0, len(fields))
			for _, f := range fields {
				if len(f) != 1 {
					return nil, fmt.Errorf("%w: column label %q", ErrInvalidMatrixFormat, f)
				}
				cols = append(cols, f[0])
			}
			continue
		}

		if len(fields) != len(cols)+1 || len(fields[0]) != 1 {
			return nil, fmt.Errorf("%w: row %q", ErrInvalidMatrixFormat, line)
		}
		row := fields[0][0]
		a := m.encodeLabel(row)
		if a < 0 {
			continue // residues outside the alphabet, e.g. B, Z, *
		}
		for j, f := range fields[1:] {
			b := m.encodeLabel(cols[j])
			if b < 0 {
				continue
			}
			s, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: score %q", ErrInvalidMatrixFormat, f)
			}
			m.Scores[a][b] = int(math.Round(scale * (s + bias)))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cols == nil {
		return nil, ErrInvalidMatrixFormat
	}

	return m, nil
}

// encodeLabel maps a matrix row/column label to an encoded symbol,
// or -1 for labels outside the alphabet.
func (m *SubstitutionMatrix) encodeLabel(aa byte) int {
	for i, b := range m.Alphabet {
		if b == aa {
			return i
		}
	}
	return -1
}

// Score returns the substitution score of two encoded symbols.
func (m *SubstitutionMatrix) Score(a, b int8) int {
	return m.Scores[a][b]
}

// The standard BLOSUM62 table, NCBI text format.
const blosum62 = `#  Matrix made by matblas from blosum62.iij
#  BLOSUM Clustered Scoring Matrix in 1/2 Bit Units
   A  R  N  D  C  Q  E  G  H  I  L  K  M  F  P  S  T  W  Y  V  B  Z  X  *
A  4 -1 -2 -2  0 -1 -1  0 -2 -1 -1 -1 -1 -2 -1  1  0 -3 -2  0 -2 -1  0 -4
R -1  5  0 -2 -3  1  0 -2  0 -3 -2  2 -1 -3 -2 -1 -1 -3 -2 -3 -1  0 -1 -4
N -2  0  6  1 -3  0  0  0  1 -3 -3  0 -2 -3 -2  1  0 -4 -2 -3  3  0 -1 -4
D -2 -2  1  6 -3  0  2 -1 -1 -3 -4 -1 -3 -3 -1  0 -1 -4 -3 -3  4  1 -1 -4
C  0 -3 -3 -3  9 -3 -4 -3 -3 -1 -1 -3 -1 -2 -3 -1 -1 -2 -2 -1 -3 -3 -2 -4
Q -1  1  0  0 -3  5  2 -2  0 -3 -2  1  0 -3 -1  0 -1 -2 -1 -2  0  3 -1 -4
E -1  0  0  2 -4  2  5 -2  0 -3 -3  1 -2 -3 -1  0 -1 -3 -2 -2  1  4 -1 -4
G  0 -2  0 -1 -3 -2 -2  6 -2 -4 -4 -2 -3 -3 -2  0 -2 -2 -3 -3 -1 -2 -1 -4
H -2  0  1 -1 -3  0  0 -2  8 -3 -3 -1 -2 -1 -2 -1 -2 -2  2 -3  0  0 -1 -4
I -1 -3 -3 -3 -1 -3 -3 -4 -3  4  2 -3  1  0 -3 -2 -1 -3 -1  3 -3 -3 -1 -4
L -1 -2 -3 -4 -1 -2 -3 -4 -3  2  4 -2  2  0 -3 -2 -1 -2 -1  1 -4 -3 -1 -4
K -1  2  0 -1 -3  1  1 -2 -1 -3 -2  5 -1 -3 -1  0 -1 -3 -2 -2  0  1 -1 -4
M -1 -1 -2 -3 -1  0 -2 -3 -2  1  2 -1  5  0 -2 -1 -1 -1 -1  1 -3 -1 -1 -4
F -2 -3 -3 -3 -2 -3 -3 -3 -1  0  0 -3  0  6 -4 -2 -2  1  3 -1 -3 -3 -1 -4
P -1 -2 -2 -1 -3 -1 -1 -2 -2 -3 -3 -1 -2 -4  7 -1 -1 -4 -3 -2 -2 -1 -2 -4
S  1 -1  1  0 -1  0  0  0 -1 -2 -2  0 -1 -2 -1  4  1 -3 -2 -2  0  0  0 -4
T  0 -1  0 -1 -1 -1 -1 -2 -2 -1 -1 -1 -1 -2 -1  1  5 -2 -2  0 -1 -1  0 -4
W -3 -3 -4 -4 -2 -2 -3 -2 -2 -3 -2 -3 -1  1 -4 -3 -2 11  2 -3 -4 -3 -2 -4
Y -2 -2 -2 -3 -2 -1 -2 -3  2 -1 -1 -2 -1  3 -3 -2 -2  2  7 -1 -3 -2 -1 -4
V  0 -3 -3 -3 -1 -2 -2 -3 -3  3  1 -2  1 -1 -2 -2  0 -3 -1  4 -3 -2 -1 -4
B -2 -1  3  4 -3  0  1 -1  0 -3 -4  0 -3 -3 -2  0 -1 -4 -3 -3  4  1 -1 -4
Z -1  0  0  1 -3  3  4 -2  0 -3 -3  1 -1 -3 -1  0 -1 -3 -2 -2  1  4 -1 -4
X  0 -1 -1 -1 -2 -1 -1 -1 -1 -1 -1 -1 -1 -1 -2  0  0 -2 -1 -1 -1 -1 -1 -4
* -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4 -4  1
`
