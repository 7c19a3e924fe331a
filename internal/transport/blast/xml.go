package blast

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	"github.com/kailas-cloud/seqsearch/internal/domain/alignment"
)

// localIDPrefix marks ids synthesised by makeblastdb when -parse_seqids was not used.
const localIDPrefix = "gnl|BL_ORD_ID|"

// Report is a decoded BLAST XML report for a single query.
type Report struct {
	Program     string
	Version     string
	Database    string
	QueryLength int
	Hits        []Hit
	Stats       Statistics
	Message     string
}

// Hit is one subject sequence with its HSPs in report order.
type Hit struct {
	ID        string
	Def       string
	Accession string
	Length    int
	HSPs      []HSP
}

// Header returns the subject's FASTA-style header line.
func (h Hit) Header() string {
	if h.ID == "" || strings.HasPrefix(h.ID, localIDPrefix) {
		return h.Def
	}
	if h.Def == "" {
		return h.ID
	}
	return h.ID + " " + h.Def
}

// HSP is one high-scoring segment pair. EValue is alignment.NotSignificant
// when the report carries none.
type HSP struct {
	BitScore   float64
	Score      int
	EValue     float64
	QueryFrom  int
	QueryTo    int
	HitFrom    int
	HitTo      int
	Identity   int
	Positive   int
	Gaps       int
	AlignLen   int
	QuerySeq   string
	SubjectSeq string
	Midline    string
}

// Statistics are the database search statistics.
type Statistics struct {
	DBNum    int
	DBLen    int64
	EffSpace float64
	Kappa    float64
	Lambda   float64
	Entropy  float64
}

type xmlOutput struct {
	XMLName    xml.Name       `xml:"BlastOutput"`
	Program    string         `xml:"BlastOutput_program"`
	Version    string         `xml:"BlastOutput_version"`
	DB         string         `xml:"BlastOutput_db"`
	QueryLen   string         `xml:"BlastOutput_query-len"`
	Iterations []xmlIteration `xml:"BlastOutput_iterations>Iteration"`
}

type xmlIteration struct {
	QueryLen string     `xml:"Iteration_query-len"`
	Hits     []xmlHit   `xml:"Iteration_hits>Hit"`
	Stats    []xmlStats `xml:"Iteration_stat>Statistics"`
	Message  string     `xml:"Iteration_message"`
}

type xmlHit struct {
	ID        string   `xml:"Hit_id"`
	Def       string   `xml:"Hit_def"`
	Accession string   `xml:"Hit_accession"`
	Len       string   `xml:"Hit_len"`
	HSPs      []xmlHSP `xml:"Hit_hsps>Hsp"`
}

type xmlHSP struct {
	BitScore  string `xml:"Hsp_bit-score"`
	Score     string `xml:"Hsp_score"`
	EValue    string `xml:"Hsp_evalue"`
	QueryFrom string `xml:"Hsp_query-from"`
	QueryTo   string `xml:"Hsp_query-to"`
	HitFrom   string `xml:"Hsp_hit-from"`
	HitTo     string `xml:"Hsp_hit-to"`
	Identity  string `xml:"Hsp_identity"`
	Positive  string `xml:"Hsp_positive"`
	Gaps      string `xml:"Hsp_gaps"`
	AlignLen  string `xml:"Hsp_align-len"`
	QSeq      string `xml:"Hsp_qseq"`
	HSeq      string `xml:"Hsp_hseq"`
	Midline   string `xml:"Hsp_midline"`
}

type xmlStats struct {
	DBNum    string `xml:"Statistics_db-num"`
	DBLen    string `xml:"Statistics_db-len"`
	EffSpace string `xml:"Statistics_eff-space"`
	Kappa    string `xml:"Statistics_kappa"`
	Lambda   string `xml:"Statistics_lambda"`
	Entropy  string `xml:"Statistics_entropy"`
}

// ParseXMLFile decodes the report at path, reading at most maxBytes when positive.
func ParseXMLFile(path string, maxBytes int64) (Report, error) {
	f, err := os.Open(path) //nolint:gosec // path is a runner-owned temp file
	if err != nil {
		return Report{}, fmt.Errorf("open report: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes)
	}
	return ParseXML(r)
}

// ParseXML decodes a BLAST XML (-outfmt 5) report. A report with no hits is
// not an error. Malformed or empty input returns an error wrapping domain.ErrParse.
func ParseXML(r io.Reader) (Report, error) {
	var out xmlOutput
	if err := xml.NewDecoder(r).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return Report{}, fmt.Errorf("%w: empty report", domain.ErrParse)
		}
		return Report{}, fmt.Errorf("%w: %w", domain.ErrParse, err)
	}

	rep := Report{
		Program:     strings.TrimSpace(out.Program),
		Version:     strings.TrimSpace(out.Version),
		Database:    strings.TrimSpace(out.DB),
		QueryLength: atoi(out.QueryLen, 0),
	}
	if len(out.Iterations) == 0 {
		return rep, nil
	}

	// One query per job; later iterations belong to PSI rounds and are ignored.
	it := out.Iterations[0]
	if rep.QueryLength == 0 {
		rep.QueryLength = atoi(it.QueryLen, 0)
	}
	rep.Message = strings.TrimSpace(it.Message)
	if len(it.Stats) > 0 {
		s := it.Stats[0]
		rep.Stats = Statistics{
			DBNum:    atoi(s.DBNum, 0),
			DBLen:    int64(atof(s.DBLen, 0)),
			EffSpace: atof(s.EffSpace, 0),
			Kappa:    atof(s.Kappa, 0),
			Lambda:   atof(s.Lambda, 0),
			Entropy:  atof(s.Entropy, 0),
		}
	}

	rep.Hits = make([]Hit, 0, len(it.Hits))
	for _, h := range it.Hits {
		hit := Hit{
			ID:        strings.TrimSpace(h.ID),
			Def:       strings.TrimSpace(h.Def),
			Accession: strings.TrimSpace(h.Accession),
			Length:    atoi(h.Len, 0),
			HSPs:      make([]HSP, 0, len(h.HSPs)),
		}
		for _, s := range h.HSPs {
			hit.HSPs = append(hit.HSPs, HSP{
				BitScore:   atof(s.BitScore, 0),
				Score:      atoi(s.Score, 0),
				EValue:     atof(s.EValue, alignment.NotSignificant),
				QueryFrom:  atoi(s.QueryFrom, 0),
				QueryTo:    atoi(s.QueryTo, 0),
				HitFrom:    atoi(s.HitFrom, 0),
				HitTo:      atoi(s.HitTo, 0),
				Identity:   atoi(s.Identity, 0),
				Positive:   atoi(s.Positive, 0),
				Gaps:       atoi(s.Gaps, 0),
				AlignLen:   atoi(s.AlignLen, 0),
				QuerySeq:   strings.TrimSpace(s.QSeq),
				SubjectSeq: strings.TrimSpace(s.HSeq),
				Midline:    strings.Trim(s.Midline, "\r\n"),
			})
		}
		rep.Hits = append(rep.Hits, hit)
	}
	return rep, nil
}

func atoi(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}

func atof(s string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return def
	}
	return v
}
