package blast

import (
	"context"
)

// Database types accepted by makeblastdb.
const (
	DBProtein    = "prot"
	DBNucleotide = "nucl"
)

// ArtifactExtensions returns the files makeblastdb produces for a single-volume database.
func ArtifactExtensions(dbType string) []string {
	if dbType == DBNucleotide {
		return []string{".nhr", ".nin", ".nsq"}
	}
	return []string{".phr", ".pin", ".psq"}
}

// MakeDB describes one makeblastdb invocation.
type MakeDB struct {
	SourceFasta string
	DBPath      string
	DBType      string
	Title       string
}

// Args builds the makeblastdb argv.
func (m MakeDB) Args() []string {
	args := []string{
		"-in", m.SourceFasta,
		"-dbtype", m.DBType,
		"-out", m.DBPath,
		"-parse_seqids",
	}
	if m.Title != "" {
		args = append(args, "-title", m.Title)
	}
	return args
}

// MakeDB builds a search index from a FASTA file.
func (r *Runner) MakeDB(ctx context.Context, m MakeDB) error {
	_, err := r.exec(ctx, ToolMakeDB, m.Args())
	return err
}

// InspectDB runs blastdbcmd -info against the index. The tool's stdout is
// returned even when it exits non-zero.
func (r *Runner) InspectDB(ctx context.Context, dbPath, dbType string) (string, error) {
	out, err := r.exec(ctx, ToolDBCmd, []string{"-db", dbPath, "-dbtype", dbType, "-info"})
	return string(out), err
}
