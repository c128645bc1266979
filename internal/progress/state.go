// Package progress reports the phases of a mirror run.
package progress

// State is a phase of a mirror run.
type State int

const (
	Validating State = iota
	ProviderSelected
	GlobalCredentialsInstalled
	SourceCloned
	LocalCredentialsWired
	Pushed
	MetadataCaptured
	LocalTorndown
	GlobalTorndown
	SessionRemoved
	Succeeded
	Failed
)

var stateNames = [...]string{
	Validating:                 "validating",
	ProviderSelected:           "provider selected",
	GlobalCredentialsInstalled: "global credentials installed",
	SourceCloned:               "source cloned",
	LocalCredentialsWired:      "local credentials wired",
	Pushed:                     "pushed",
	MetadataCaptured:           "metadata captured",
	LocalTorndown:              "local credentials torn down",
	GlobalTorndown:             "global credentials torn down",
	SessionRemoved:             "session removed",
	Succeeded:                  "succeeded",
	Failed:                     "failed",
}

// String implements fmt.Stringer
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed
}
