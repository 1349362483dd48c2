package main

import (
	"github.com/jopamo/tfs/pkg/engine"
	"github.com/jopamo/tfs/pkg/errkind"
)

// exitCodeFor maps an error returned from a command (for example a
// manifest load/parse failure surfaced before an engine.ApplyResult
// exists) to the process exit code spec §6 defines; exitCodeForClass
// does the same for an ExitClass.
func exitCodeFor(err error) int {
	return exitCodeForClass(classifyTopLevel(err))
}

func exitCodeForClass(class engine.ExitClass) int {
	switch class {
	case engine.Success:
		return 0
	case engine.OperationalFailure:
		return 1
	case engine.PolicyFailure:
		return 2
	case engine.TransactionalFailure:
		return 3
	default:
		return 1
	}
}

// classifyTopLevel handles errors that never reach pkg/engine at all:
// a missing manifest file, malformed JSON, or schema rejection.
func classifyTopLevel(err error) engine.ExitClass {
	switch errkind.CodeOf(err) {
	case errkind.IoError, errkind.PermissionDenied, errkind.SourceMissing:
		return engine.OperationalFailure
	case errkind.PolicyViolation, errkind.RootEscape, errkind.SymlinkPolicy,
		errkind.DestinationExists, errkind.StructurallyInvalid, errkind.NonAbsoluteRoot,
		errkind.InvalidPath, errkind.MaxBytesExceeded, errkind.HashCollision, errkind.CrossDeviceBlocked:
		return engine.PolicyFailure
	default:
		return engine.OperationalFailure
	}
}
