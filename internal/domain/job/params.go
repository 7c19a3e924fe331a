package job

import (
	"strings"
	"unicode/utf8"

	"github.com/kailas-cloud/seqsearch/internal/domain"
)

// Algorithm is a BLAST+ program name.
type Algorithm string

// Supported aligners.
const (
	BlastP  Algorithm = "blastp"
	BlastN  Algorithm = "blastn"
	BlastX  Algorithm = "blastx"
	TBlastN Algorithm = "tblastn"
	TBlastX Algorithm = "tblastx"
)

var algorithms = map[Algorithm]struct{}{
	BlastP: {}, BlastN: {}, BlastX: {}, TBlastN: {}, TBlastX: {},
}

// QueryIsNucleotide reports whether the program expects a nucleotide query.
func (a Algorithm) QueryIsNucleotide() bool {
	return a == BlastN || a == BlastX || a == TBlastX
}

// UsesMatrix reports whether the program accepts a protein scoring matrix.
func (a Algorithm) UsesMatrix() bool {
	return a != BlastN
}

// DefaultWordSize returns the word size BLAST+ would use for the program.
func (a Algorithm) DefaultWordSize() int {
	if a == BlastN {
		return 11
	}
	return 3
}

const (
	proteinAlphabet    = "ACDEFGHIKLMNPQRSTVWYBZXUOJ*-"
	nucleotideAlphabet = "ACGTUNRYKMSWBDHV-"

	// DefaultEValue is the BLAST+ default expectation threshold.
	DefaultEValue = 10.0
	// MaxEValue bounds the accepted expectation threshold.
	MaxEValue = 1000.0
	// DefaultMaxResults caps reported hits when the client sets none.
	DefaultMaxResults = 50
	// MaxMaxResults bounds the accepted hit cap.
	MaxMaxResults = 5000
	// DefaultMatrix is used for protein-scored programs when unset.
	DefaultMatrix = "BLOSUM62"
)

var matrices = map[string]struct{}{
	"BLOSUM45": {}, "BLOSUM50": {}, "BLOSUM62": {}, "BLOSUM80": {}, "BLOSUM90": {},
	"PAM30": {}, "PAM70": {}, "PAM250": {},
}

// Request is an unvalidated search submission.
type Request struct {
	Sequence   string
	Algorithm  string
	EValue     *float64
	MaxResults *int
	Matrix     *string
	WordSize   *int
	GapOpen    *int
	GapExtend  *int
}

// Limits bounds the accepted query length.
type Limits struct {
	MinLength int
	MaxLength int
}

// Params is a validated, immutable search request.
type Params struct {
	sequence   string
	algorithm  Algorithm
	evalue     float64
	maxResults int
	matrix     string
	wordSize   int
	gapOpen    *int
	gapExtend  *int
}

// NewParams validates req and returns the canonical parameters.
// The sequence is stripped of FASTA header lines and whitespace and upper-cased.
func NewParams(req Request, limits Limits) (Params, error) {
	algo := Algorithm(strings.ToLower(strings.TrimSpace(req.Algorithm)))
	if algo == "" {
		return Params{}, domain.NewValidationError("algorithm", "is required")
	}
	if _, ok := algorithms[algo]; !ok {
		return Params{}, domain.NewValidationError("algorithm", "unsupported value %q", req.Algorithm)
	}

	seq := CleanSequence(req.Sequence)
	if seq == "" {
		return Params{}, domain.NewValidationError("sequence", "is empty")
	}
	if limits.MinLength > 0 && len(seq) < limits.MinLength {
		return Params{}, domain.NewValidationError("sequence",
			"too short (%d residues, min %d)", len(seq), limits.MinLength)
	}
	if limits.MaxLength > 0 && len(seq) > limits.MaxLength {
		return Params{}, domain.NewValidationError("sequence",
			"too long (%d residues, max %d)", len(seq), limits.MaxLength)
	}
	alphabet, kind := proteinAlphabet, "protein"
	if algo.QueryIsNucleotide() {
		alphabet, kind = nucleotideAlphabet, "nucleotide"
	}
	if i := strings.IndexFunc(seq, func(r rune) bool { return !strings.ContainsRune(alphabet, r) }); i >= 0 {
		r, _ := utf8.DecodeRuneInString(seq[i:])
		return Params{}, domain.NewValidationError("sequence",
			"invalid %s character %q at position %d", kind, r, utf8.RuneCountInString(seq[:i])+1)
	}

	p := Params{
		sequence:   seq,
		algorithm:  algo,
		evalue:     DefaultEValue,
		maxResults: DefaultMaxResults,
		wordSize:   algo.DefaultWordSize(),
	}

	if req.EValue != nil {
		if *req.EValue <= 0 || *req.EValue > MaxEValue {
			return Params{}, domain.NewValidationError("significanceThreshold",
				"must be in (0, %g], got %g", MaxEValue, *req.EValue)
		}
		p.evalue = *req.EValue
	}

	if req.MaxResults != nil {
		if *req.MaxResults < 1 || *req.MaxResults > MaxMaxResults {
			return Params{}, domain.NewValidationError("maxResults",
				"must be between 1 and %d, got %d", MaxMaxResults, *req.MaxResults)
		}
		p.maxResults = *req.MaxResults
	}

	if algo.UsesMatrix() {
		p.matrix = DefaultMatrix
	}
	if req.Matrix != nil && *req.Matrix != "" {
		if !algo.UsesMatrix() {
			return Params{}, domain.NewValidationError("matrix", "not applicable to %s", algo)
		}
		m := strings.ToUpper(*req.Matrix)
		if _, ok := matrices[m]; !ok {
			return Params{}, domain.NewValidationError("matrix", "unsupported value %q", *req.Matrix)
		}
		p.matrix = m
	}

	if req.WordSize != nil && *req.WordSize != 0 {
		lo, hi := 2, 7
		if algo == BlastN {
			lo, hi = 4, 64
		}
		if *req.WordSize < lo || *req.WordSize > hi {
			return Params{}, domain.NewValidationError("wordSize",
				"must be between %d and %d for %s, got %d", lo, hi, algo, *req.WordSize)
		}
		p.wordSize = *req.WordSize
	}

	if req.GapOpen != nil {
		if *req.GapOpen < 0 || *req.GapOpen > 100 {
			return Params{}, domain.NewValidationError("gapOpen", "must be between 0 and 100, got %d", *req.GapOpen)
		}
		v := *req.GapOpen
		p.gapOpen = &v
	}
	if req.GapExtend != nil {
		if *req.GapExtend < 0 || *req.GapExtend > 100 {
			return Params{}, domain.NewValidationError("gapExtend", "must be between 0 and 100, got %d", *req.GapExtend)
		}
		v := *req.GapExtend
		p.gapExtend = &v
	}

	return p, nil
}

// CleanSequence drops FASTA header lines and all whitespace and upper-cases the residues.
func CleanSequence(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ">") || strings.HasPrefix(line, ";") {
			continue
		}
		for _, r := range line {
			if r == ' ' || r == '\t' || r == '\r' {
				continue
			}
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(b.String())
}

// Sequence returns the cleaned query residues.
func (p Params) Sequence() string { return p.sequence }

// Algorithm returns the aligner program.
func (p Params) Algorithm() Algorithm { return p.algorithm }

// EValue returns the significance threshold.
func (p Params) EValue() float64 { return p.evalue }

// MaxResults returns the hit cap.
func (p Params) MaxResults() int { return p.maxResults }

// Matrix returns the scoring matrix, empty for nucleotide-scored programs.
func (p Params) Matrix() string { return p.matrix }

// WordSize returns the seed word size.
func (p Params) WordSize() int { return p.wordSize }

// GapOpen returns the gap-open penalty if set.
func (p Params) GapOpen() (int, bool) {
	if p.gapOpen == nil {
		return 0, false
	}
	return *p.gapOpen, true
}

// GapExtend returns the gap-extend penalty if set.
func (p Params) GapExtend() (int, bool) {
	if p.gapExtend == nil {
		return 0, false
	}
	return *p.gapExtend, true
}
