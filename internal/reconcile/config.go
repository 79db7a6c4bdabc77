package reconcile

import "time"

// HashMode selects the content fingerprinting scheme used during a run.
type HashMode int

const (
	// HashFast uses FNV-1a-64 over a partial byte range. No destination
	// index is built and the move detector never operates in this mode.
	HashFast HashMode = iota
	// HashStrong uses BLAKE3-256 over the full file content.
	HashStrong
)

func (m HashMode) String() string {
	switch m {
	case HashStrong:
		return "strong"
	default:
		return "fast"
	}
}

// ParseHashMode parses the --hash flag value.
func ParseHashMode(s string) (HashMode, error) {
	switch s {
	case "", "fast":
		return HashFast, nil
	case "strong":
		return HashStrong, nil
	default:
		return HashFast, errInvalidHashMode
	}
}

// Mode selects whether Src/Dst name directory trees to reconcile or a
// single pair of files to compare-and-maybe-copy.
type Mode int

const (
	ModeDir Mode = iota
	ModeFile
)

func (m Mode) String() string {
	if m == ModeFile {
		return "file"
	}

	return "dir"
}

// ParseMode parses the mode value (set from the CLI's mutually-exclusive
// --dir/--file flags or the YAML "mode" key).
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "dir":
		return ModeDir, nil
	case "file":
		return ModeFile, nil
	default:
		return ModeDir, errInvalidMode
	}
}

// Config is the configuration record consumed by the reconciliation core.
type Config struct {
	Mode Mode

	Src string
	Dst string

	Ignore []string

	Mirror bool
	DryRun bool

	HashMode HashMode

	MaxCopyWorkers int

	// VerifyAfterCopy re-reads and re-hashes a destination file after a
	// plain copy or a copy-and-remove move fallback.
	VerifyAfterCopy bool

	// CaseInsensitive selects the path normalizer's case-fold policy.
	CaseInsensitive bool

	// DirMoveThreshold is the directory-level majority-match overlap
	// ratio required before a source directory is treated as a move of
	// an existing destination directory (default 0.85).
	DirMoveThreshold float64

	// SlowModeBatch and SlowModeDelay throttle the walk after every N
	// directory creations and file-level renames; copies, directory
	// moves and mirror deletions are not counted.
	SlowModeBatch int
	SlowModeDelay time.Duration
}

// DefaultDirMoveThreshold is the default directory-move overlap ratio.
const DefaultDirMoveThreshold = 0.85

// DefaultMaxCopyWorkers is the run-level default worker pool size.
const DefaultMaxCopyWorkers = 4

func (c *Config) withDefaults() *Config {
	cp := *c
	if cp.MaxCopyWorkers <= 0 {
		cp.MaxCopyWorkers = DefaultMaxCopyWorkers
	}
	if cp.DirMoveThreshold <= 0 {
		cp.DirMoveThreshold = DefaultDirMoveThreshold
	}
	return &cp
}
