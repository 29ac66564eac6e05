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

	"github.com/shenwei356/seqaln/seqaln/seqdb"
	"github.com/spf13/cobra"
)

var rmdbCmd = &cobra.Command{
	Use:   "rmdb",
	Short: "Remove a database and its sidecar files",
	Long: `Remove a database and its sidecar files

Removes the data and index files of the given database, the .dbtype,
.lookup and metadata sidecars if present, and shard files left over
from an interrupted run.

`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)

		if len(args) == 0 {
			checkError(fmt.Errorf("database path(s) needed"))
		}
		for _, db := range args {
			checkError(seqdb.RemoveDB(db))
			if opt.Verbose {
				log.Infof("removed database: %s", db)
			}
		}
	},
}

func init() {
	RootCmd.AddCommand(rmdbCmd)

	rmdbCmd.SetUsageTemplate(usageTemplate("<db> [<db> ...]"))
}
