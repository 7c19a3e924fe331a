package identity

import "strings"

// Placeholders for identity fields that could not be resolved.
const (
	UnknownGene    = "Unknown"
	UnknownProtein = "Unknown protein"
)

// Record is the metadata of one reference sequence.
type Record struct {
	ID          string
	Accession   string
	GeneName    string
	ProteinName string
}

// Unknown returns the placeholder record for an accession missing from the table.
func Unknown(accession string) Record {
	return Record{
		ID:          accession,
		Accession:   accession,
		GeneName:    UnknownGene,
		ProteinName: UnknownProtein,
	}
}

// organismMarkers end the protein name part of a UniProt-style description.
var organismMarkers = []string{" OS=", " OX=", " GN=", " PE=", " SV="}

// ParseFallback derives a record from a raw header without the identity table.
// A first token of the form db|ACCESSION|ENTRY_NAME yields the accession and a
// gene hint from ENTRY_NAME before the underscore; the remaining description up
// to the organism marker becomes the protein name.
func ParseFallback(header string) Record {
	line := cleanHeader(header)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Unknown("")
	}

	rec := Unknown(ExtractAccession(line))

	parts := strings.Split(fields[0], "|")
	if len(parts) >= 3 && parts[1] != "" {
		acc := parts[1]
		if base, _, _ := strings.Cut(acc, "."); base != "" {
			acc = base
		}
		rec.ID = acc
		rec.Accession = acc
		if gene, _, ok := strings.Cut(parts[2], "_"); ok && gene != "" {
			rec.GeneName = gene
		} else if parts[2] != "" {
			rec.GeneName = parts[2]
		}
	}

	desc := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
	if gn := tagValue(desc, "GN="); gn != "" {
		rec.GeneName = gn
	}
	if name := proteinName(desc); name != "" {
		rec.ProteinName = name
	}

	return rec
}

func proteinName(desc string) string {
	padded := " " + desc
	end := len(padded)
	for _, m := range organismMarkers {
		if i := strings.Index(padded, m); i >= 0 && i < end {
			end = i
		}
	}
	return strings.TrimSpace(padded[:end])
}

func tagValue(desc, tag string) string {
	i := strings.Index(desc, tag)
	if i < 0 {
		return ""
	}
	rest := desc[i+len(tag):]
	if j := strings.IndexAny(rest, " \t"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

func cleanHeader(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(header), ">"))
}
