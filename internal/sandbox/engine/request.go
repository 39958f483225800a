package engine

import (
	"execbox/internal/sandbox/security"
	"execbox/internal/sandbox/spec"
)

// Descriptor layout shared with cmd/sandbox-init.
const (
	// InitFD carries the JSON initRequest into the helper.
	InitFD = 3
	// StatusFD is the helper's close-on-exec error channel.
	StatusFD = 4
	// AckPipeFD is moved onto security.AckFD before exec.
	AckPipeFD = 5

	// HelperFailedExit is the helper's exit status after a setup error.
	HelperFailedExit = 127
)

// InitRequest is the helper's wire input.
type InitRequest struct {
	Binary  string             `json:"binary"`
	WorkDir string             `json:"workDir"`
	Env     []string           `json:"env"`
	Limits  spec.ResourceLimit `json:"limits"`
	// PreExec is loaded before exec; it never denies the exec family.
	PreExec security.Policy `json:"preExec"`
}

func newInitRequest(rs spec.RunSpec) InitRequest {
	return InitRequest{
		Binary:  rs.Binary,
		WorkDir: rs.WorkDir,
		Env:     rs.Env,
		Limits:  rs.Limits,
		PreExec: security.PreExecFilter(rs.Policy),
	}
}
