package supervisor

import "errors"

const (
	// StartSubcommand is passed to script targets.
	StartSubcommand = "start"
	// TunnelFlag is appended for script targets unless running offline.
	TunnelFlag = "--tunnel"
)

// ErrInterpreterRequired is returned for a script target without an interpreter.
var ErrInterpreterRequired = errors.New("script target requires an interpreter")

// Target describes how to launch the subordinate server.
type Target struct {
	Path        string   // Native executable, or script handed to Interpreter
	Bundled     bool     // Path is a bundled native executable
	Interpreter string   // Interpreter for script targets
	Offline     bool     // Omit the tunnel flag
	Env         []string // Additional environment variables
	Dir         string   // Working directory; empty for the current one
}

// Command returns the program and arguments for the target. Bundled
// executables run with no interpreter prefix and no subcommand.
func (t Target) Command() (string, []string, error) {
	if t.Path == "" {
		return "", nil, errors.New("target path is empty")
	}
	if t.Bundled {
		return t.Path, nil, nil
	}
	if t.Interpreter == "" {
		return "", nil, ErrInterpreterRequired
	}
	args := []string{t.Path, StartSubcommand}
	if !t.Offline {
		args = append(args, TunnelFlag)
	}
	return t.Interpreter, args, nil
}
