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
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shenwei356/seqaln/seqaln/seqdb"
	"github.com/shenwei356/xopen"
	"github.com/spf13/cobra"
)

var aln2tsvCmd = &cobra.Command{
	Use:   "aln2tsv",
	Short: "Flatten an alignment result database to TSV",
	Long: `Flatten an alignment result database to TSV

Keys are resolved to record names via the .lookup files of the query
and target databases when given, otherwise the numeric keys are kept.

Output columns:
  query, target, score, seqid, evalue, qstart, qend, qlen,
  tstart, tend, tlen, and cigar if present.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		if len(args) != 1 {
			checkError(fmt.Errorf("1 argument needed: <alignment result db>"))
		}
		resultDB := args[0]
		checkExistingFile(resultDB, "result database")

		outFile := getFlagString(cmd, "out-file")
		queryDB := getFlagString(cmd, "query-db")
		targetDB := getFlagString(cmd, "target-db")

		qNames, err := readLookup(queryDB)
		checkError(err)
		tNames, err := readLookup(targetDB)
		checkError(err)

		r, err := seqdb.Open(resultDB, "")
		checkError(err)
		defer func() {
			checkError(r.Close())
		}()

		outfh, gw, w, err := outStream(outFile, strings.HasSuffix(outFile, ".gz"), opt.CompressionLevel)
		checkError(err)
		defer func() {
			outfh.Flush()
			if gw != nil {
				gw.Close()
			}
			w.Close()
		}()

		name := func(names map[uint32]string, key uint32) string {
			if names != nil {
				if n, ok := names[key]; ok {
					return n
				}
			}
			return strconv.FormatUint(uint64(key), 10)
		}

		var n uint64
		for i := uint64(0); i < r.Size(); i++ {
			queryKey := r.KeyAt(i)
			query := name(qNames, queryKey)
			for _, line := range strings.Split(string(r.DataByOrdinal(i)), "\n") {
				if line == "" {
					continue
				}
				target := line
				var rest string
				if j := strings.IndexByte(line, '\t'); j >= 0 {
					target = line[:j]
					rest = line[j:]
				}
				key, err := strconv.ParseUint(target, 10, 32)
				if err != nil {
					checkError(errors.Wrapf(err, "invalid target key in record of query %d", queryKey))
				}
				fmt.Fprintf(outfh, "%s\t%s%s\n", query, name(tNames, uint32(key)), rest)
				n++
			}
		}

		if opt.Verbose {
			log.Infof("%d alignments of %d queries saved to: %s", n, r.Size(), outFile)
		}
	},
}

// readLookup loads the key-to-name sidecar of a database.
// An empty path returns a nil map.
func readLookup(db string) (map[uint32]string, error) {
	if db == "" {
		return nil, nil
	}
	file := db + seqdb.LookupFileExt
	fh, err := xopen.Ropen(file)
	if err != nil {
		return nil, errors.Wrap(err, file)
	}

	names := make(map[uint32]string, 1024)
	items := make([]string, 2)
	scanner := bufio.NewScanner(fh)
	var line string
	for scanner.Scan() {
		line = strings.TrimRight(scanner.Text(), "\r\n")
		if line == "" {
			continue
		}
		stringSplitNByByte(line, '\t', 2, &items)
		if len(items) < 2 {
			continue
		}
		key, err := strconv.ParseUint(items[0], 10, 32)
		if err != nil {
			return nil, errors.Wrap(err, file)
		}
		names[uint32(key)] = items[1]
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrap(err, file)
	}
	return names, fh.Close()
}

func init() {
	RootCmd.AddCommand(aln2tsvCmd)

	aln2tsvCmd.Flags().StringP("out-file", "o", "-",
		formatFlagUsage(`Out file, supports a ".gz" suffix ("-" for stdout).`))

	aln2tsvCmd.Flags().StringP("query-db", "q", "",
		formatFlagUsage(`Query database, for resolving query keys to names via its .lookup file.`))

	aln2tsvCmd.Flags().StringP("target-db", "t", "",
		formatFlagUsage(`Target database, for resolving target keys to names via its .lookup file.`))

	aln2tsvCmd.SetUsageTemplate(usageTemplate("<alignment result db> [-o out.tsv.gz]"))
}
