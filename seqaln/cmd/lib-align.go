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
	"bytes"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/shenwei356/seqaln/seqaln/align"
	"github.com/shenwei356/seqaln/seqaln/seqdb"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"gonum.org/v1/gonum/stat"
)

// flushSize is the number of prefilter records processed between two
// remappings of the prefilter database.
const flushSize = 1000000

// chunkSize is the number of contiguous ordinals handed to a worker at
// once. Per-query cost varies widely with candidate-list length, so
// work is dispatched dynamically in small chunks.
const chunkSize = 100

// AlignOptions controls the alignment stage.
type AlignOptions struct {
	CovThr   float64 // minimum query and target coverage
	EvalThr  float64 // maximum e-value
	SeqIdThr float64 // minimum sequence identity

	FragmentMerge bool
	AddBacktrace  bool

	Mode int // requested alignment mode, align.ModeFastAuto by default

	MaxSeqLen          int
	Threads            int
	CompBiasCorrection bool

	QuerySeqType  int
	TargetSeqType int

	MaxAlnNum   int // per query, stop after this many accepted hits
	MaxRejected int // per query, stop after this many consecutive rejections

	SubMatFile string // empty for the built-in BLOSUM62

	Verbose bool

	// NewMatcher overrides the aligner construction, mainly for tests.
	// The default is the built-in Smith-Waterman matcher.
	NewMatcher func(maxSeqLen int, m *align.SubstitutionMatrix, dbResidues uint64, compBias bool) align.Matcher
}

// workerScratch is the per-worker state, owned exclusively by one worker
// goroutine from pool start to pool shutdown.
type workerScratch struct {
	qSeq    *align.Sequence
	tSeq    *align.Sequence
	matcher align.Matcher

	hits []align.Result
	buf  bytes.Buffer
}

// Aligner drives pairwise alignment of each query against its prefilter
// candidates and writes one sorted result record per query.
type Aligner struct {
	opt  *AlignOptions
	mode int // effective alignment mode

	m *align.SubstitutionMatrix

	qdbr *seqdb.Reader
	tdbr *seqdb.Reader
	pdbr *seqdb.Reader

	sameQTDB bool

	outDB      string
	outDBIndex string

	scratches []*workerScratch

	alignments  uint64
	totalPassed uint64
}

// NewAligner opens the query, target and prefilter databases and
// validates the configuration.
func NewAligner(queryDB, targetDB, prefDB, outDB, outDBIndex string, opt *AlignOptions) (*Aligner, error) {
	if opt.Threads < 1 {
		opt.Threads = 1
	}
	if outDBIndex == "" {
		outDBIndex = outDB + seqdb.SeqDBIndexFileExt
	}

	a := &Aligner{
		opt:        opt,
		outDB:      outDB,
		outDBIndex: outDBIndex,
		sameQTDB:   queryDB == targetDB,
	}

	var err error
	if a.mode, err = resolveMode(opt); err != nil {
		return nil, err
	}

	if opt.QuerySeqType == align.Nucleotides {
		a.m = align.NucleotideMatrix()
	} else {
		// keep score bias at 0.0
		a.m, err = align.SubstitutionMatrixFromFile(opt.SubMatFile, 0.0, 2.0)
		if err != nil {
			return nil, err
		}
	}

	if a.qdbr, err = seqdb.Open(queryDB, ""); err != nil {
		return nil, err
	}
	if a.tdbr, err = seqdb.Open(targetDB, ""); err != nil {
		a.qdbr.Close()
		return nil, err
	}
	if err = a.tdbr.ReadAllIntoMemory(); err != nil {
		a.Close()
		return nil, err
	}
	if a.pdbr, err = seqdb.Open(prefDB, ""); err != nil {
		a.qdbr.Close()
		a.tdbr.Close()
		return nil, err
	}

	newMatcher := opt.NewMatcher
	if newMatcher == nil {
		newMatcher = func(maxSeqLen int, m *align.SubstitutionMatrix, dbResidues uint64, compBias bool) align.Matcher {
			return align.NewSWMatcher(maxSeqLen, m, dbResidues, compBias)
		}
	}

	a.scratches = make([]*workerScratch, opt.Threads)
	for i := range a.scratches {
		a.scratches[i] = &workerScratch{
			qSeq:    align.NewSequence(opt.MaxSeqLen, a.m, opt.QuerySeqType, opt.CompBiasCorrection),
			tSeq:    align.NewSequence(opt.MaxSeqLen, a.m, opt.TargetSeqType, opt.CompBiasCorrection),
			matcher: newMatcher(opt.MaxSeqLen, a.m, a.tdbr.Residues(), opt.CompBiasCorrection),
			hits:    make([]align.Result, 0, 32),
		}
	}

	return a, nil
}

// resolveMode maps the requested alignment mode and thresholds to the
// effective evaluation mode.
func resolveMode(opt *AlignOptions) (int, error) {
	mode := opt.Mode
	if opt.AddBacktrace {
		mode = align.ModeScoreCovSeqID
	}

	switch mode {
	case align.ModeFastAuto:
		if opt.CovThr == 0 && opt.SeqIdThr == 0 {
			mode = align.ModeScoreOnly
		} else if opt.CovThr > 0 && opt.SeqIdThr == 0 {
			mode = align.ModeScoreCov
		} else {
			mode = align.ModeScoreCovSeqID
		}
	case align.ModeScoreOnly, align.ModeScoreCov, align.ModeScoreCovSeqID:
	default:
		return 0, fmt.Errorf("invalid alignment mode: %d", mode)
	}

	if mode == align.ModeScoreOnly && opt.FragmentMerge {
		return 0, fmt.Errorf("fragment merge does not work with score-only alignment, set --alignment-mode to %d or %d",
			align.ModeScoreCov, align.ModeScoreCovSeqID)
	}
	return mode, nil
}

// Mode returns the effective alignment mode.
func (a *Aligner) Mode() int {
	return a.mode
}

// Close closes all database readers.
func (a *Aligner) Close() error {
	var firstErr error
	for _, r := range []*seqdb.Reader{a.qdbr, a.tdbr, a.pdbr} {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Run aligns all queries of the prefilter database.
func (a *Aligner) Run() error {
	return a.run(a.outDB, a.outDBIndex, 0, a.pdbr.Size())
}

// RunWithRanks runs one rank of a distributed job over its sub-range,
// then merges the per-rank outputs on rank 0. The barrier must return
// only after all ranks have finished writing; a nil barrier is allowed
// when an external scheduler already guarantees that for rank 0.
func (a *Aligner) RunWithRanks(rank int, nProcs int, barrier func()) error {
	dbFrom, dbSize := a.decomposeByResidues(rank, nProcs)
	if a.opt.Verbose {
		log.Infof("rank %d: computing split from %d to %d", rank, dbFrom, dbFrom+dbSize)
	}

	tmpDB, tmpDBIndex := tmpFileNames(a.outDB, a.outDBIndex, rank)
	if err := a.run(tmpDB, tmpDBIndex, dbFrom, dbSize); err != nil {
		return err
	}

	if barrier != nil {
		barrier()
	} else if rank == 0 && nProcs > 1 {
		log.Warning("no barrier given, assuming all other ranks have finished")
	}

	if rank != 0 {
		return nil
	}

	// rank 0 reduces the results
	pairs := make([][2]string, nProcs)
	for proc := 0; proc < nProcs; proc++ {
		d, i := tmpFileNames(a.outDB, a.outDBIndex, proc)
		pairs[proc] = [2]string{d, i}
	}
	if err := seqdb.MergeResults(a.outDB, a.outDBIndex, pairs); err != nil {
		return err
	}
	for _, pair := range pairs {
		os.Remove(pair[0])
		os.Remove(pair[1])
		os.Remove(pair[0] + seqdb.MetaFileExt)
	}
	return nil
}

func tmpFileNames(db string, dbIndex string, rank int) (string, string) {
	return fmt.Sprintf("%s.%d", db, rank), fmt.Sprintf("%s.%d", dbIndex, rank)
}

// decomposeByResidues splits the prefilter ordinals into contiguous
// sub-ranges of roughly equal total query length.
func (a *Aligner) decomposeByResidues(rank int, nProcs int) (uint64, uint64) {
	n := a.pdbr.Size()
	if nProcs <= 1 {
		return 0, n
	}

	lens := make([]uint64, n)
	for i := uint64(0); i < n; i++ {
		key := a.pdbr.KeyAt(i)
		if data := a.qdbr.DataByKey(key); data != nil {
			lens[i] = uint64(len(data))
		}
	}
	bounds := splitByWeight(lens, nProcs)
	return bounds[rank], bounds[rank+1] - bounds[rank]
}

// splitByWeight computes nProcs+1 contiguous range boundaries over the
// weighted records, each range receiving a total weight as close as
// possible to the even share. A record straddling an even share goes to
// the earlier range on ties.
func splitByWeight(lens []uint64, nProcs int) []uint64 {
	var total uint64
	for _, l := range lens {
		total += l
	}

	bounds := make([]uint64, nProcs+1)
	bounds[nProcs] = uint64(len(lens))

	target := func(r int) uint64 {
		return total * uint64(r) / uint64(nProcs)
	}

	var cum uint64
	r := 1
	for i, l := range lens {
		next := cum + l
		for r < nProcs && next >= target(r) {
			if next-target(r) <= target(r)-cum {
				bounds[r] = uint64(i) + 1
			} else {
				bounds[r] = uint64(i)
			}
			r++
		}
		cum = next
	}
	for ; r < nProcs; r++ {
		bounds[r] = uint64(len(lens))
	}
	return bounds
}

// run processes the ordinal range [dbFrom, dbFrom+dbSize) of the
// prefilter database with the configured worker count.
func (a *Aligner) run(outDB string, outDBIndex string, dbFrom uint64, dbSize uint64) error {
	dbw, err := seqdb.NewWriter(outDB, outDBIndex, a.opt.Threads)
	if err != nil {
		return err
	}

	var pbs *mpb.Progress
	var bar *mpb.Bar
	if a.opt.Verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(dbSize),
			mpb.PrependDecorators(
				decor.Name("aligned queries: ", decor.WC{W: len("aligned queries: "), C: decor.DindentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.AverageETA(decor.ET_STYLE_GO),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
	}

	hitsPerQuery := make([]float64, dbSize)

	type chunk struct {
		start, end uint64
	}

	var aborted atomic.Bool
	var fatalOnce sync.Once
	var fatalErr error
	fail := func(err error) {
		fatalOnce.Do(func() {
			fatalErr = err
		})
		aborted.Store(true)
	}

	iterations := (dbSize + flushSize - 1) / flushSize
	for it := uint64(0); it < iterations; it++ {
		start := dbFrom + it*flushSize
		bucketSize := dbSize - it*flushSize
		if bucketSize > flushSize {
			bucketSize = flushSize
		}

		ch := make(chan chunk, a.opt.Threads)
		var wg sync.WaitGroup
		for w := 0; w < a.opt.Threads; w++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				s := a.scratches[worker]
				for c := range ch {
					for id := c.start; id < c.end; id++ {
						if aborted.Load() {
							continue
						}
						passed, err := a.alignQuery(s, id, dbw, worker)
						if err != nil {
							fail(err)
							continue
						}
						hitsPerQuery[id-dbFrom] = float64(passed)
					}
					if bar != nil {
						bar.IncrBy(int(c.end - c.start))
					}
				}
			}(w)
		}

		for from := start; from < start+bucketSize; from += chunkSize {
			end := from + chunkSize
			if end > start+bucketSize {
				end = start + bucketSize
			}
			ch <- chunk{start: from, end: end}
		}
		close(ch)
		wg.Wait()

		if aborted.Load() {
			break
		}

		// release pages accumulated during this bucket
		if err = a.pdbr.Remap(); err != nil {
			fail(err)
			break
		}
	}

	if pbs != nil {
		if fatalErr != nil {
			bar.Abort(true)
		}
		pbs.Wait()
	}

	if fatalErr != nil {
		// leave the partial shards on disk, skip merging
		return fatalErr
	}

	if err = dbw.Close(); err != nil {
		return err
	}

	if a.opt.Verbose {
		alignments := atomic.LoadUint64(&a.alignments)
		passed := atomic.LoadUint64(&a.totalPassed)
		log.Info("all sequences processed")
		log.Infof("  %d alignments calculated", alignments)
		if alignments > 0 {
			log.Infof("  %d sequence pairs passed the thresholds (%.6f of overall calculated)",
				passed, float64(passed)/float64(alignments))
		}
		if dbSize > 1 {
			mean := stat.Mean(hitsPerQuery, nil)
			stdev := stat.StdDev(hitsPerQuery, nil)
			log.Infof("  %.6f ± %.6f hits per query sequence", mean, stdev)
		} else if dbSize == 1 {
			log.Infof("  %.6f hits per query sequence", hitsPerQuery[0])
		}
	}

	return nil
}

// alignQuery runs the per-query driver for one prefilter ordinal and
// appends the serialized result record to the worker's output shard.
// It returns the number of accepted hits.
func (a *Aligner) alignQuery(s *workerScratch, ordinal uint64, dbw *seqdb.Writer, worker int) (int, error) {
	prefList := a.pdbr.DataByOrdinal(ordinal)
	queryKey := a.pdbr.KeyAt(ordinal)

	querySeqData := a.qdbr.DataByKey(queryKey)
	if querySeqData == nil {
		return 0, fmt.Errorf("query sequence %d is required in the prefiltering, but is not contained in the query sequence database", queryKey)
	}

	if err := s.qSeq.Map(queryKey, querySeqData); err != nil {
		return 0, err
	}
	s.matcher.InitQuery(s.qSeq)

	opt := a.opt
	s.hits = s.hits[:0]
	var passed, rejected int

	var pos int
	for pos < len(prefList) {
		rec := prefList[pos:]
		if i := bytes.IndexByte(rec, '\n'); i >= 0 {
			rec = rec[:i]
			pos += i + 1
		} else {
			// the final record may not be newline-terminated
			pos = len(prefList)
		}
		if len(rec) == 0 {
			continue
		}

		keyField := rec
		if i := bytes.IndexByte(rec, '\t'); i >= 0 {
			keyField = rec[:i]
		}
		// the prefilter score and e-value fields are skipped
		dbKey := parseDbKey(keyField)

		if passed >= opt.MaxAlnNum || rejected >= opt.MaxRejected {
			break
		}

		// identical sequences need to pass for clustering of short sequences
		isIdentity := queryKey == dbKey && a.sameQTDB

		dbSeqData := a.tdbr.DataByKey(dbKey)
		if dbSeqData == nil {
			return 0, fmt.Errorf("sequence %d is required in the prefiltering, but is not contained in the target sequence database", dbKey)
		}
		if err := s.tSeq.Map(dbKey, dbSeqData); err != nil {
			return 0, err
		}

		// check if the sequences could pass the coverage threshold
		if !opt.FragmentMerge {
			if float64(s.qSeq.L)/float64(s.tSeq.L) < opt.CovThr ||
				float64(s.tSeq.L)/float64(s.qSeq.L) < opt.CovThr {
				rejected++
				continue
			}
		}

		res := s.matcher.Match(s.tSeq, a.mode)
		atomic.AddUint64(&a.alignments, 1)

		if isIdentity {
			res.QCov = 1.0
			res.DbCov = 1.0
			res.SeqID = 1.0
		}

		if isIdentity ||
			(res.Eval <= opt.EvalThr && res.SeqID >= opt.SeqIdThr &&
				res.QCov >= opt.CovThr && res.DbCov >= opt.CovThr) ||
			((a.mode == align.ModeScoreCov || a.mode == align.ModeScoreCovSeqID) &&
				opt.FragmentMerge && res.DbCov >= 0.95 && res.SeqID >= 0.9) {
			s.hits = append(s.hits, res)
			passed++
			atomic.AddUint64(&a.totalPassed, 1)
			rejected = 0
		} else {
			rejected++
		}
	}

	align.SortHits(s.hits)

	s.buf.Reset()
	for i := range s.hits {
		align.AppendResult(&s.buf, &s.hits[i], opt.AddBacktrace)
	}

	return passed, dbw.Write(queryKey, s.buf.Bytes(), worker)
}

// parseDbKey parses a decimal target key the way strtoul does: leading
// digits are consumed and anything else ends the number, so numerically
// invalid fields yield key 0 rather than an error.
func parseDbKey(field []byte) uint32 {
	var v uint64
	for _, c := range field {
		if c < '0' || c > '9' {
			break
		}
		v = v*10 + uint64(c-'0')
	}
	return uint32(v)
}
