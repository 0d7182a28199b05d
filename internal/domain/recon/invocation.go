package recon

import "time"

// ToolOptions carries the config-level knobs baked into one adapter at
// construction: binary override, wordlists, timeout, extra args.
type ToolOptions struct {
	BinaryPath  string        // override, defaults to the tool name on PATH
	WordlistWeb string        // directory brute-force wordlist
	WordlistDNS string        // dns brute-force wordlist
	ExtraArgs   []string      // appended verbatim after built args
	Timeout     time.Duration // override, 0 = adapter default
}

// ToolRequest untuk Adapter.Run
type ToolRequest struct {
	ScanID  ScanID
	Profile Profile
	Targets []string // validated and normalized by the scheduler
}

// Artifact is a raw output kept for upload after the workspace is removed.
type Artifact struct {
	Name        string
	Data        []byte
	ContentType string
}

// Outcome hasil dari Adapter.Run
type Outcome struct {
	Findings []Finding
	Status   ToolOutcome
	Message  string
	Raw      []Artifact
	Err      error
}

// Command is one subprocess to execute: argv form, never a shell.
type Command struct {
	Binary string
	Args   []string
	Dir    string
	Env    []string
}

// ProcessResult captures a finished subprocess.
type ProcessResult struct {
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Truncated bool
	TimedOut  bool
	Duration  time.Duration
}

// Invocation is one execution instance, owned by the executor until its
// outcome is reduced to a ToolStatus.
type Invocation struct {
	ID         string
	Tool       Tool
	Stage      Stage
	Targets    []string
	StartedAt  time.Time
	FinishedAt time.Time
}
