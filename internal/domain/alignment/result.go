package alignment

import (
	"math"
	"sort"
)

// NotSignificant is the e-value assigned to hits the aligner reported without one.
const NotSignificant = 1e10

// Hit is one enriched alignment against a reference sequence.
type Hit struct {
	RecordID     string
	Accession    string
	GeneName     string
	ProteinName  string
	Description  string
	EValue       float64
	BitScore     float64
	Score        int
	Identity     float64
	Positives    float64
	Gaps         int
	QueryStart   int
	QueryEnd     int
	SubjectStart int
	SubjectEnd   int
	QuerySeq     string
	SubjectSeq   string
	Midline      string
	AlignLength  int
}

// Stats holds the scoring model and reference set identity of a search.
type Stats struct {
	Program        string
	Version        string
	Database       string
	Kappa          float64
	Lambda         float64
	Entropy        float64
	EffectiveSpace float64
}

// Result is a completed search.
type Result struct {
	QueryLength     int
	DatabaseSize    int
	DatabaseLetters int64
	TotalHits       int
	Hits            []Hit
	Stats           Stats
}

// NewResult assembles a result with hits ordered by e-value. Hits is never nil.
func NewResult(queryLen, dbSize int, dbLetters int64, hits []Hit, stats Stats) Result {
	if hits == nil {
		hits = []Hit{}
	}
	SortHits(hits)
	return Result{
		QueryLength:     queryLen,
		DatabaseSize:    dbSize,
		DatabaseLetters: dbLetters,
		TotalHits:       len(hits),
		Hits:            hits,
		Stats:           stats,
	}
}

// SortHits orders hits ascending by e-value, then descending by bit score.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].EValue != hits[j].EValue {
			return hits[i].EValue < hits[j].EValue
		}
		return hits[i].BitScore > hits[j].BitScore
	})
}

// Percent returns n/length*100 rounded to one decimal, clamped to [0, 100].
func Percent(n, length int) float64 {
	if length <= 0 || n <= 0 {
		return 0
	}
	p := math.Round(float64(n)/float64(length)*1000) / 10
	if p > 100 {
		return 100
	}
	return p
}
