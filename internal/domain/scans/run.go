package scans

import "time"

// Invocation untuk Invoker: satu command eksternal
type Invocation struct {
	Name    string // transcript label, e.g. "sast-semgrep"
	Command []string
	Dir     string
	Env     []string // appended to the parent environment
	Timeout time.Duration
}

// Execution hasil dari Invoker. A nonzero ExitCode is a normal outcome.
type Execution struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	TimedOut bool
	LogPath  string
	Duration time.Duration
}
