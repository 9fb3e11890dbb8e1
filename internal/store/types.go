package store

import "time"

// Note kinds.
const (
	NoteUntrusted = "untrusted"
	NoteDemoted   = "demoted"
	NoteForeign   = "foreign"
	NoteReqReinst = "reqreinst"
	NoteWarning   = "warning"
)

// Plan is one recorded planning run. Outcome is the exit kind of the run;
// failed runs are recorded without changes.
type Plan struct {
	ID             int64
	CreatedAt      time.Time
	Outcome        string
	Message        string
	ServerMode     bool
	MetaPackage    string
	DownloadBytes  int64
	InstalledDelta int64
	ChangeCount    int

	Changes []Change
	Space   []Space
	Notes   []Note
}

// Change is one package transition of a recorded plan.
type Change struct {
	Package       string
	Mark          string
	Auto          bool
	FromVersion   string
	ToVersion     string
	DownloadBytes int64
}

// Space is the requirement on one mount point.
type Space struct {
	MountPoint    string
	RequiredBytes int64
	ShortBy       int64
}

// Note is an informational list entry such as a foreign package.
type Note struct {
	Kind  string
	Value string
}

// NoteValues returns the values of every note of kind, in insertion order.
func (p *Plan) NoteValues(kind string) []string {
	var out []string
	for _, n := range p.Notes {
		if n.Kind == kind {
			out = append(out, n.Value)
		}
	}
	return out
}
