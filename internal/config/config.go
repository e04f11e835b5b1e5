// Package config centralizes the environment variables, default ports and
// on-disk locations every role reads at startup, in the same
// flag/env-merge style as the teacher's cmd/restic/global.go GlobalOptions.
package config

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"strings"

	"github.com/throttlehq/throttle/internal/errors"
)

const (
	TokenEnvVar = "THROTTLE_IPC_TOKEN"
	EnvFileName = ".env"

	PortArbiter       = 54321
	PortFSMonitor     = 54322
	PortPoolTakeover  = 54323
	PortWatchdog      = 54324
	PortSupervisor    = 54325
	PortSystemManager = 54443
	PortPoolCommands  = 54506
)

// DefaultRoots mirrors spec.md §4.6's default watch roots, expanded against
// the user's home directory at call time (see fsmonitor.DefaultRoots).
var DefaultRoots = []string{"Downloads", "Desktop"}

// ExcludedDirNames mirrors spec.md §4.6's exclusion list.
var ExcludedDirNames = map[string]bool{
	"windows": true, "program files": true, "system32": true, "appdata": true,
	"tmp": true, "temp": true, "cache": true, "proc": true, "sys": true,
	"dev": true, "node_modules": true, "venv": true, "env": true,
}

// PartialExtensions mirrors spec.md §4.6's partial-download extension list.
var PartialExtensions = map[string]bool{
	".part": true, ".crdownload": true, ".tmp": true, ".download": true, ".partial": true,
}

// Token resolves the shared bearer token: the environment variable first,
// then a ".env" file in the working directory, generating and persisting a
// fresh one if neither exists (spec.md §3 "Control Token", §6 ".env").
func Token() (string, error) {
	if t := os.Getenv(TokenEnvVar); t != "" {
		return t, nil
	}
	if t, ok := readEnvFile(EnvFileName); ok {
		return t, nil
	}
	t, err := generateToken()
	if err != nil {
		return "", errors.Classify(errors.KindResource, err)
	}
	if err := writeEnvFile(EnvFileName, t); err != nil {
		return "", errors.Classify(errors.KindDisk, err)
	}
	return t, nil
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readEnvFile(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, TokenEnvVar+"=") {
			continue
		}
		return strings.TrimPrefix(line, TokenEnvVar+"="), true
	}
	return "", false
}

func writeEnvFile(path, token string) error {
	return os.WriteFile(path, []byte(TokenEnvVar+"="+token+"\n"), 0o600)
}

// HeartbeatPath returns the on-disk heartbeat file for a role name
// (spec.md §6, "<service>.heartbeat").
func HeartbeatPath(role string) string {
	return role + ".heartbeat"
}

// ParseUnixTime parses the decimal unix-time contents of a heartbeat file.
func ParseUnixTime(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
