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
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/seqaln/seqaln/seqdb"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var createdbCmd = &cobra.Command{
	Use:   "createdb",
	Short: "Create a sequence database from FASTA/Q files",
	Long: `Create a sequence database from FASTA/Q files

Records are assigned sequential 32-bit keys in input order. Besides the
data and index files, three sidecar files are saved:

  <outDB>.dbtype     sequence type
  <outDB>.lookup     key to record name mapping
  <outDB>.meta.toml  record counts and a content checksum

Input files can be given as positional arguments, via -X/--infile-list,
or scanned from a directory with -I/--in-dir and -r/--file-regexp.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		seq.ValidateSeq = false

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

		outDB := getFlagString(cmd, "out-db")
		if outDB == "" {
			checkError(fmt.Errorf("flag -o/--out-db needed"))
		}
		seqTypeS := getFlagString(cmd, "seq-type")

		inDir := getFlagString(cmd, "in-dir")
		pattern := getFlagString(cmd, "file-regexp")

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", true)
		if inDir != "" {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				checkError(errors.Wrapf(err, "failed to parse regular expression for matching file: %s", pattern))
			}
			dirFiles, err := getFileListFromDir(inDir, re, opt.NumCPUs)
			checkError(err)
			files = append(files, dirFiles...)
		}
		if len(files) == 0 {
			checkError(fmt.Errorf("input files needed, from positional arguments, -X/--infile-list, or -I/--in-dir"))
		}

		if outputLog {
			log.Infof("seqaln v%s", VERSION)
			log.Info()
			log.Infof("creating database from %d file(s)...", len(files))
		}

		var pbs *mpb.Progress
		var bar *mpb.Bar
		if opt.Verbose {
			pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
			bar = pbs.AddBar(int64(len(files)),
				mpb.PrependDecorators(
					decor.Name("processed files: ", decor.WC{W: len("processed files: "), C: decor.DindentRight}),
					decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
				),
				mpb.AppendDecorators(
					decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
					decor.AverageETA(decor.ET_STYLE_GO),
					decor.OnComplete(decor.Name(""), ". done"),
				),
			)
		}

		dbw, err := seqdb.NewWriter(outDB, "", 1)
		checkError(err)

		fhLookup, err := os.Create(outDB + seqdb.LookupFileExt)
		checkError(errors.Wrap(err, outDB+seqdb.LookupFileExt))
		lookup := bufio.NewWriter(fhLookup)

		seqType := -1
		switch seqTypeS {
		case "auto":
		case "amino":
			seqType = seqdb.SeqTypeAminoAcids
		case "nucl":
			seqType = seqdb.SeqTypeNucleotides
		default:
			checkError(fmt.Errorf("invalid value of flag --seq-type: %s, should be one of auto, amino, nucl", seqTypeS))
		}

		var key uint32
		var record *fastx.Record
		for _, file := range files {
			fastxReader, err := fastx.NewReader(nil, file, "")
			checkError(err)

			for {
				record, err = fastxReader.Read()
				if err != nil {
					if err == io.EOF {
						break
					}
					checkError(err)
					break
				}

				if seqType < 0 {
					seqType = guessSeqType(record.Seq.Seq)
				}

				checkError(dbw.Write(key, record.Seq.Seq, 0))
				fmt.Fprintf(lookup, "%d\t%s\n", key, record.ID)
				key++
			}
			fastxReader.Close()

			if bar != nil {
				bar.Increment()
			}
		}
		if pbs != nil {
			pbs.Wait()
		}

		if seqType < 0 {
			seqType = seqdb.SeqTypeAminoAcids
		}

		checkError(dbw.Close())
		checkError(lookup.Flush())
		checkError(fhLookup.Close())
		checkError(seqdb.WriteDBType(outDB, seqType))

		// record the sequence type in the metadata as well
		meta, err := seqdb.ReadMeta(outDB)
		checkError(err)
		meta.SeqType = seqType
		checkError(seqdb.WriteMeta(outDB, meta))

		if outputLog {
			log.Infof("%d sequences saved to: %s", key, outDB)
		}
	},
}

// guessSeqType takes a sequence for a nucleotide one when at least 90% of
// its symbols (gaps, stops and spaces not counted) are A, C, G, T, U or N,
// in either case. Other IUPAC ambiguity codes count as non-nucleotide.
func guessSeqType(s []byte) int {
	var acgt, n int
	for _, b := range s {
		switch b {
		case 'A', 'C', 'G', 'T', 'U', 'N', 'a', 'c', 'g', 't', 'u', 'n':
			acgt++
			n++
		case '-', '.', '*', ' ':
		default:
			n++
		}
	}
	if n > 0 && float64(acgt)/float64(n) >= 0.9 {
		return seqdb.SeqTypeNucleotides
	}
	return seqdb.SeqTypeAminoAcids
}

func init() {
	RootCmd.AddCommand(createdbCmd)

	createdbCmd.Flags().StringP("out-db", "o", "",
		formatFlagUsage(`Output database.`))

	createdbCmd.Flags().StringP("seq-type", "", "auto",
		formatFlagUsage(`Sequence type: auto, amino, or nucl. The default guesses from the first record.`))

	createdbCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage(`Directory containing input files. Directory symlinks are followed.`))

	createdbCmd.Flags().StringP("file-regexp", "r", `\.(f[aq](st[aq])?|fna|faa)(.gz)?$`,
		formatFlagUsage(`Regular expression for matching sequence files in -I/--in-dir, case ignored.`))

	createdbCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`A file with paths of input files, one per line. Comment lines start with "#".`))

	createdbCmd.SetUsageTemplate(usageTemplate("[seqs.fasta.gz ...] -o <out db>"))
}
