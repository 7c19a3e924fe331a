package blast

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/seqsearch/internal/domain/job"
)

// outfmtXML selects BLAST XML output.
const outfmtXML = "5"

// Search is one aligner invocation.
type Search struct {
	Params    job.Params
	QueryPath string
	DBPath    string
	OutPath   string
}

// Args builds the aligner argv (without the binary). The scoring matrix is
// only passed to programs that accept one; gap penalties only when set.
func (s Search) Args(threads int) []string {
	p := s.Params
	args := []string{
		"-query", s.QueryPath,
		"-db", s.DBPath,
		"-evalue", strconv.FormatFloat(p.EValue(), 'g', -1, 64),
		"-max_target_seqs", strconv.Itoa(p.MaxResults()),
		"-outfmt", outfmtXML,
		"-out", s.OutPath,
	}
	if p.Algorithm().UsesMatrix() && p.Matrix() != "" {
		args = append(args, "-matrix", p.Matrix())
	}
	args = append(args, "-word_size", strconv.Itoa(p.WordSize()))
	if v, ok := p.GapOpen(); ok {
		args = append(args, "-gapopen", strconv.Itoa(v))
	}
	if v, ok := p.GapExtend(); ok {
		args = append(args, "-gapextend", strconv.Itoa(v))
	}
	if threads > 1 {
		args = append(args, "-num_threads", strconv.Itoa(threads))
	}
	return args
}

// Run invokes the aligner selected by the job's algorithm and waits for it.
// The XML report is left at s.OutPath.
func (r *Runner) Run(ctx context.Context, s Search) error {
	tool := string(s.Params.Algorithm())
	if _, err := r.exec(ctx, tool, s.Args(r.threads)); err != nil {
		return err
	}
	return r.checkFileSize(tool, s.OutPath)
}
