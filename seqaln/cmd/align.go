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

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/shenwei356/seqaln/seqaln/align"
	"github.com/shenwei356/seqaln/seqaln/seqdb"
	"github.com/spf13/cobra"
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align queries against their prefiltered candidate targets",
	Long: `Align queries against their prefiltered candidate targets

The prefilter database maps every query to an ordered candidate list of
target keys. For each query, a Smith-Waterman alignment is computed
against each candidate, hits are filtered by coverage, sequence identity
and e-value, and one sorted result record is saved per query.

Attention:
  1. The query, target and prefilter databases are created with
     "seqaln createdb" and the upstream prefilter stage.
  2. Candidates are tried in the order they appear in the prefilter
     record. Together with --max-accept and --max-rejected this bounds
     the work per query.
  3. Sequence types are read from the .dbtype files of the input
     databases.

Alignment modes (--alignment-mode):
  0. automatic, derived from the filter thresholds (fastest fit)
  1. score and end positions only
  2. also start positions and coverage
  3. also sequence identity

Output format:
  One record per query, keyed by the query. Each line of a record is one
  accepted hit, sorted by decreasing score:

    target  score  seqid  evalue  qstart  qend  qlen  tstart  tend  tlen  [cigar]

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		var fhLog *os.File
		if opt.Log2File {
			fhLog = addLog(opt.LogFile, opt.Verbose)
		}
		outputLog := opt.Verbose || opt.Log2File
		timeStart := time.Now()
		defer func() {
			if outputLog {
				log.Info()
				log.Infof("elapsed time: %s", time.Since(timeStart))
				log.Info()
			}
			if opt.Log2File {
				fhLog.Close()
			}
		}()

		if len(args) != 4 {
			checkError(fmt.Errorf("4 arguments needed: <queryDB> <targetDB> <prefilterDB> <outDB>"))
		}
		queryDB, targetDB, prefDB, outDB := args[0], args[1], args[2], args[3]
		for _, db := range []string{queryDB, targetDB, prefDB} {
			checkExistingFile(db, "input database")
			checkExistingFile(db+seqdb.SeqDBIndexFileExt, "input database index")
		}

		covThr := getFlagNonNegativeFloat64(cmd, "cov")
		if covThr > 1 {
			checkError(fmt.Errorf("the value of flag -c/--cov (%f) should be in range of [0, 1]", covThr))
		}
		seqIdThr := getFlagNonNegativeFloat64(cmd, "min-seq-id")
		if seqIdThr > 1 {
			checkError(fmt.Errorf("the value of flag --min-seq-id (%f) should be in range of [0, 1]", seqIdThr))
		}

		querySeqType, err := seqdb.ReadDBType(queryDB)
		checkError(err)
		targetSeqType, err := seqdb.ReadDBType(targetDB)
		checkError(err)

		aopt := &AlignOptions{
			CovThr:   covThr,
			EvalThr:  getFlagNonNegativeFloat64(cmd, "evalue"),
			SeqIdThr: seqIdThr,

			FragmentMerge: getFlagBool(cmd, "frag-merge"),
			AddBacktrace:  getFlagBool(cmd, "add-backtrace"),

			Mode: getFlagNonNegativeInt(cmd, "alignment-mode"),

			MaxSeqLen:          getFlagPositiveInt(cmd, "max-seq-len"),
			Threads:            opt.NumCPUs,
			CompBiasCorrection: getFlagBool(cmd, "comp-bias-corr"),

			QuerySeqType:  seqTypeToAlign(querySeqType),
			TargetSeqType: seqTypeToAlign(targetSeqType),

			MaxAlnNum:   getFlagPositiveInt(cmd, "max-accept"),
			MaxRejected: getFlagPositiveInt(cmd, "max-rejected"),

			SubMatFile: expandPath(getFlagString(cmd, "sub-mat")),

			Verbose: opt.Verbose,
		}

		rank := getFlagNonNegativeInt(cmd, "rank")
		ranks := getFlagPositiveInt(cmd, "ranks")
		if rank >= ranks {
			checkError(fmt.Errorf("the value of flag --rank (%d) should be less than that of --ranks (%d)", rank, ranks))
		}

		if outputLog {
			log.Infof("seqaln v%s", VERSION)
			log.Info("  https://github.com/shenwei356/seqaln")
			log.Info()
			log.Infof("aligning with %d threads...", opt.NumCPUs)
		}

		a, err := NewAligner(queryDB, targetDB, prefDB, outDB, "", aopt)
		checkError(err)
		defer func() {
			checkError(a.Close())
		}()

		if ranks > 1 {
			checkError(a.RunWithRanks(rank, ranks, nil))
		} else {
			checkError(a.Run())
		}

		checkError(seqdb.WriteDBType(outDB, seqdb.SeqTypeAminoAcids))
		if outputLog {
			log.Infof("alignment results saved to: %s", outDB)
		}
	},
}

func seqTypeToAlign(seqType int) int {
	switch seqType {
	case seqdb.SeqTypeNucleotides:
		return align.Nucleotides
	case seqdb.SeqTypeProfile:
		return align.HMMProfile
	}
	return align.AminoAcids
}

func init() {
	RootCmd.AddCommand(alignCmd)

	alignCmd.Flags().Float64P("cov", "c", 0,
		formatFlagUsage(`Minimum coverage of query and target by the alignment, in range [0, 1]. Also pre-screens candidates by length ratio.`))

	alignCmd.Flags().Float64P("evalue", "e", 0.001,
		formatFlagUsage(`Maximum e-value of accepted hits.`))

	alignCmd.Flags().Float64P("min-seq-id", "", 0,
		formatFlagUsage(`Minimum sequence identity of accepted hits, in range [0, 1].`))

	alignCmd.Flags().BoolP("frag-merge", "", false,
		formatFlagUsage(`Also accept short high-identity matches covering nearly the whole target, for merging fragmented sequences. Disables the length pre-screen and does not work with score-only alignment.`))

	alignCmd.Flags().BoolP("add-backtrace", "a", false,
		formatFlagUsage(`Output the compressed alignment backtrace as an extra column. Forces alignment mode 3.`))

	alignCmd.Flags().IntP("alignment-mode", "", 0,
		formatFlagUsage(`How much of the alignment to compute: 0: automatic, 1: score and end positions, 2: also start positions and coverage, 3: also sequence identity.`))

	alignCmd.Flags().IntP("max-seq-len", "", 65535,
		formatFlagUsage(`Maximum sequence length.`))

	alignCmd.Flags().BoolP("comp-bias-corr", "", true,
		formatFlagUsage(`Correct scores for locally biased amino acid composition.`))

	alignCmd.Flags().IntP("max-accept", "", 300,
		formatFlagUsage(`Maximum number of accepted hits per query; further candidates are not tried.`))

	alignCmd.Flags().IntP("max-rejected", "", 32767,
		formatFlagUsage(`Stop trying candidates of a query after this many consecutive rejections.`))

	alignCmd.Flags().StringP("sub-mat", "", "",
		formatFlagUsage(`Substitution matrix file in the NCBI text format. The built-in BLOSUM62 is used by default. Nucleotide databases always use the built-in nucleotide matrix.`))

	alignCmd.Flags().IntP("rank", "", 0,
		formatFlagUsage(`Rank of this process in a distributed run.`))

	alignCmd.Flags().IntP("ranks", "", 1,
		formatFlagUsage(`Number of processes of a distributed run. The input range is split by total query length. Rank 0 merges the per-rank outputs, so run it after all other ranks have finished.`))

	alignCmd.SetUsageTemplate(usageTemplate("<queryDB> <targetDB> <prefilterDB> <outDB>"))
}
