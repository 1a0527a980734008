package supervisor

import (
	"errors"
	"fmt"
	"os"
)

// ServerBinaryEnv names the environment variable consulted when no explicit
// server path is configured.
const ServerBinaryEnv = "SVCGATE_SERVER_BIN"

// FindServerBinary resolves the subordinate server's path.
// It follows this precedence:
//  1. override parameter (from --server-path / server.path)
//  2. SVCGATE_SERVER_BIN environment variable
//
// requireExec is set for bundled native executables; script targets only
// need to exist since they are handed to an interpreter.
func FindServerBinary(override string, requireExec bool) (string, error) {
	if override != "" {
		return validateBinary(override, requireExec)
	}
	if envBin := os.Getenv(ServerBinaryEnv); envBin != "" {
		return validateBinary(envBin, requireExec)
	}
	return "", errors.New("no server binary configured: set server.path or the " + ServerBinaryEnv + " environment variable")
}

// validateBinary checks that the target exists, is a regular file and, when
// requireExec is set, has an execute bit.
func validateBinary(path string, requireExec bool) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("binary not found: %s", path)
		}
		return "", fmt.Errorf("failed to stat binary %s: %w", path, err)
	}

	if info.IsDir() {
		return "", fmt.Errorf("path is a directory, not a binary: %s", path)
	}

	if requireExec && info.Mode()&0111 == 0 {
		return "", fmt.Errorf("binary is not executable: %s", path)
	}

	return path, nil
}
