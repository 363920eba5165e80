package events

const (
	// ExitCodeSuccess is the exit code for a successful run.
	ExitCodeSuccess = iota
	ExitCodeGenericFailure
	ExitCodeTimeoutFailure
	// ExitCodeNotFound is used when a room or service could not be found.
	ExitCodeNotFound
	// ExitCodeFault is used when a player answers with a SOAP fault.
	ExitCodeFault
)
