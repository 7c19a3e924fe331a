package blast

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/seqsearch/internal/domain"
	"github.com/kailas-cloud/seqsearch/internal/domain/alignment"
)

func TestParseXML_Report(t *testing.T) {
	rep, err := ParseXMLFile("testdata/blastp.xml", 0)
	require.NoError(t, err)

	assert.Equal(t, "blastp", rep.Program)
	assert.Equal(t, "BLASTP 2.14.0+", rep.Version)
	assert.Equal(t, "uniprot_sprot", rep.Database)
	assert.Equal(t, 50, rep.QueryLength)
	assert.Equal(t, 570420, rep.Stats.DBNum)
	assert.Equal(t, int64(206012180), rep.Stats.DBLen)
	assert.InDelta(t, 0.267, rep.Stats.Lambda, 1e-9)
	assert.InDelta(t, 0.041, rep.Stats.Kappa, 1e-9)

	require.Len(t, rep.Hits, 4)
	first := rep.Hits[0]
	assert.Equal(t, "sp|P0A7B8|HSLV_ECOLI", first.ID)
	assert.Equal(t, 176, first.Length)
	require.Len(t, first.HSPs, 1)
	h := first.HSPs[0]
	assert.InDelta(t, 1e-5, h.EValue, 1e-12)
	assert.Equal(t, 15, h.Identity)
	assert.Equal(t, 39, h.AlignLen)
	assert.Equal(t, 3, h.QueryFrom)
	assert.Equal(t, 48, h.HitTo)

	require.Len(t, rep.Hits[1].HSPs, 2, "all HSPs kept in report order")
	assert.InDelta(t, 1.5e-50, rep.Hits[1].HSPs[0].EValue, 1e-60)
}

func TestParseXML_MidlineKeepsSpaces(t *testing.T) {
	rep, err := ParseXMLFile("testdata/blastp.xml", 0)
	require.NoError(t, err)

	hsp := rep.Hits[3].HSPs[0]
	assert.Equal(t, len(hsp.QuerySeq), len(hsp.Midline))
	assert.True(t, strings.HasPrefix(hsp.Midline, " "))
}

func TestParseXML_NoHits(t *testing.T) {
	rep, err := ParseXMLFile("testdata/nohits.xml", 0)
	require.NoError(t, err)

	assert.NotNil(t, rep.Hits)
	assert.Empty(t, rep.Hits)
	assert.Equal(t, "No hits found", rep.Message)
	assert.Equal(t, 570420, rep.Stats.DBNum)
}

func TestParseXML_MissingEValue(t *testing.T) {
	doc := `<BlastOutput><BlastOutput_iterations><Iteration><Iteration_hits>
<Hit><Hit_id>sp|P1|X_HUMAN</Hit_id><Hit_hsps><Hsp><Hsp_bit-score>10</Hsp_bit-score></Hsp></Hit_hsps></Hit>
</Iteration_hits></Iteration></BlastOutput_iterations></BlastOutput>`

	rep, err := ParseXML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, rep.Hits, 1)
	assert.Equal(t, alignment.NotSignificant, rep.Hits[0].HSPs[0].EValue)
}

func TestParseXML_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"truncated": "<BlastOutput><BlastOutput_program>blastp",
		"wrong":     "<html><body>502 Bad Gateway</body></html>",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseXML(strings.NewReader(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrParse))
		})
	}
}

func TestParseXMLFile_Missing(t *testing.T) {
	_, err := ParseXMLFile("testdata/does-not-exist.xml", 0)
	require.Error(t, err)
}

func TestHit_Header(t *testing.T) {
	tests := []struct {
		hit  Hit
		want string
	}{
		{Hit{ID: "sp|P69905|HBA_HUMAN", Def: "Hemoglobin subunit alpha"}, "sp|P69905|HBA_HUMAN Hemoglobin subunit alpha"},
		{Hit{ID: "gnl|BL_ORD_ID|77", Def: "tr|A0A024RBG1|A0A024RBG1_HUMAN NUDT4B"}, "tr|A0A024RBG1|A0A024RBG1_HUMAN NUDT4B"},
		{Hit{ID: "HSN0042"}, "HSN0042"},
		{Hit{Def: "orphan"}, "orphan"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.hit.Header())
	}
}
