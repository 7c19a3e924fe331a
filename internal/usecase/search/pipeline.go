package search

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kailas-cloud/seqsearch/internal/domain/alignment"
	domid "github.com/kailas-cloud/seqsearch/internal/domain/identity"
	domjob "github.com/kailas-cloud/seqsearch/internal/domain/job"
	"github.com/kailas-cloud/seqsearch/internal/logger"
	"github.com/kailas-cloud/seqsearch/internal/transport/blast"
)

const (
	queryFile  = "query.fasta"
	reportFile = "report.xml"
	fastaWidth = 60
)

// pipeline stages the query, runs the aligner, parses and enriches the report.
// The per-job working directory is removed before returning.
func (s *Service) pipeline(ctx context.Context, id string, params domjob.Params) (alignment.Result, error) {
	dir, err := os.MkdirTemp(s.cfg.TmpDir, "seqsearch-job-")
	if err != nil {
		return alignment.Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer s.cleanup(ctx, dir)

	queryPath := filepath.Join(dir, queryFile)
	reportPath := filepath.Join(dir, reportFile)

	if err := writeQuery(queryPath, id, params.Sequence()); err != nil {
		return alignment.Result{}, err
	}
	s.advance(id, domjob.ProgressStaged)

	err = s.aligner.Run(ctx, blast.Search{
		Params:    params,
		QueryPath: queryPath,
		DBPath:    s.cfg.DBPath,
		OutPath:   reportPath,
	})
	if err != nil {
		return alignment.Result{}, fmt.Errorf("alignment: %w", err)
	}
	s.advance(id, domjob.ProgressAligned)

	rep, err := blast.ParseXMLFile(reportPath, s.cfg.MaxReportBytes)
	if err != nil {
		return alignment.Result{}, fmt.Errorf("read report: %w", err)
	}
	s.advance(id, domjob.ProgressParsed)

	hits := s.enrich(ctx, rep)
	s.advance(id, domjob.ProgressEnriched)

	queryLen := rep.QueryLength
	if queryLen == 0 {
		queryLen = len(params.Sequence())
	}
	return alignment.NewResult(queryLen, rep.Stats.DBNum, rep.Stats.DBLen, hits, alignment.Stats{
		Program:        rep.Program,
		Version:        rep.Version,
		Database:       rep.Database,
		Kappa:          rep.Stats.Kappa,
		Lambda:         rep.Stats.Lambda,
		Entropy:        rep.Stats.Entropy,
		EffectiveSpace: rep.Stats.EffSpace,
	}), nil
}

// enrich converts report hits to result hits using the best HSP of each.
// Identity comes from the identity table when loaded, otherwise from the header.
func (s *Service) enrich(ctx context.Context, rep blast.Report) []alignment.Hit {
	mapped := s.identity != nil && s.identity.Loaded()
	if !mapped && len(rep.Hits) > 0 {
		logger.FromContext(ctx).Info("Identity table unavailable, parsing hit headers")
	}

	hits := make([]alignment.Hit, 0, len(rep.Hits))
	for _, h := range rep.Hits {
		if len(h.HSPs) == 0 {
			continue
		}
		best := h.HSPs[0]
		header := h.Header()

		var rec domid.Record
		if mapped {
			rec = s.identity.Resolve(s.identity.ExtractAccession(header))
		} else {
			rec = domid.ParseFallback(header)
		}

		hits = append(hits, alignment.Hit{
			RecordID:     rec.ID,
			Accession:    rec.Accession,
			GeneName:     rec.GeneName,
			ProteinName:  rec.ProteinName,
			Description:  h.Def,
			EValue:       best.EValue,
			BitScore:     best.BitScore,
			Score:        best.Score,
			Identity:     alignment.Percent(best.Identity, best.AlignLen),
			Positives:    alignment.Percent(best.Positive, best.AlignLen),
			Gaps:         best.Gaps,
			QueryStart:   best.QueryFrom,
			QueryEnd:     best.QueryTo,
			SubjectStart: best.HitFrom,
			SubjectEnd:   best.HitTo,
			QuerySeq:     best.QuerySeq,
			SubjectSeq:   best.SubjectSeq,
			Midline:      best.Midline,
			AlignLength:  best.AlignLen,
		})
	}
	return hits
}

func writeQuery(path, id, seq string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // path under MkdirTemp
	if err != nil {
		return fmt.Errorf("create query file: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, ">query_%s\n", id)
	for i := 0; i < len(seq); i += fastaWidth {
		end := min(i+fastaWidth, len(seq))
		w.WriteString(seq[i:end])
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("write query file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close query file: %w", err)
	}
	return nil
}

// cleanup removes the job's work dir. Failures are logged only.
func (s *Service) cleanup(ctx context.Context, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logger.FromContext(ctx).Warn("Failed to remove job work dir",
			zap.String("dir", dir),
			zap.Error(err),
		)
	}
}
