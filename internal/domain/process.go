package domain

// ProcessState is the lifecycle state of a spawned agent process.
//
// Valid transitions:
//
//	starting -> running -> exited
//	running -> cancelling -> killed
//
// Exited is reached only by the process ending on its own; killed only via
// explicit cancellation.
type ProcessState string

const (
	ProcessStarting   ProcessState = "starting"
	ProcessRunning    ProcessState = "running"
	ProcessCancelling ProcessState = "cancelling"
	ProcessExited     ProcessState = "exited"
	ProcessKilled     ProcessState = "killed"
)

// Terminal reports whether the state is a final one.
func (s ProcessState) Terminal() bool {
	return s == ProcessExited || s == ProcessKilled
}
