package supervisor

import (
	"os"
	"path/filepath"
	"strings"
)

// expandPath expands a leading "~" to $HOME and any "$VAR"/"${VAR}"
// references to their environment values, matching spec.md §4.6 step 5's
// "expand leading ~ to HOME and $VAR to env".
func expandPath(path string) string {
	if path == "~" {
		path = homeDir()
	} else if strings.HasPrefix(path, "~/") {
		path = filepath.Join(homeDir(), path[2:])
	}
	return os.ExpandEnv(path)
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return os.Getenv("HOME")
}
