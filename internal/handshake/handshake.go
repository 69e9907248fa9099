// Package handshake defines the contract shared by the two roles of the
// cross-session executor: the names of the transient service and the kernel
// objects minted for one invocation, and the service command line that
// carries them from the originator to the Session 0 worker.
package handshake

import (
	"fmt"

	"github.com/google/uuid"
)

// SvcSwitch marks a command line produced by the originator for the service
// instance of this executable. Together with the exact argument count it is
// the sole criterion for entering the worker role.
const SvcSwitch = "-svcparams_4e4450eda4cd"

// ServiceArgCount is the exact argv length of a worker invocation:
// program path, switch, service name, two pipe names, two event names.
const ServiceArgCount = 7

// Descriptor names the transient service and the four kernel objects of one
// invocation. Immutable after minting.
type Descriptor struct {
	ServiceName string
	OutputPipe  string
	ErrorPipe   string
	ReadyEvent  string
	DoneEvent   string
}

// Mint derives a fresh Descriptor from five new UUIDs. The five names must
// be pairwise distinct; a generator collision is a fatal setup failure.
func Mint() (*Descriptor, error) {
	ids := make([]string, 5)
	seen := make(map[string]bool, 5)
	for i := range ids {
		id := uuid.NewString()
		if seen[id] {
			return nil, fmt.Errorf("handshake: uuid collision on %q", id)
		}
		seen[id] = true
		ids[i] = id
	}
	return &Descriptor{
		ServiceName: "RunInSession0_" + ids[0],
		OutputPipe:  `\\.\pipe\Out_` + ids[1],
		ErrorPipe:   `\\.\pipe\Err_` + ids[2],
		ReadyEvent:  `Global\ReadyToWrite_` + ids[3],
		DoneEvent:   `Global\SvcDone_` + ids[4],
	}, nil
}

// BinaryPathName builds the full service command line: the executable path,
// always double-quoted, followed by the switch and the five names. The SCM
// tokenizes this back into exactly ServiceArgCount arguments on the worker
// side.
func (d *Descriptor) BinaryPathName(exePath string) string {
	return fmt.Sprintf(`"%s" %s %s %s %s %s %s`,
		exePath, SvcSwitch,
		d.ServiceName, d.OutputPipe, d.ErrorPipe, d.ReadyEvent, d.DoneEvent)
}

// IsServiceArgs reports whether argv has the worker handshake shape.
func IsServiceArgs(argv []string) bool {
	return len(argv) == ServiceArgCount && argv[1] == SvcSwitch
}

// ParseServiceArgs recovers the Descriptor from a worker argv. Call only
// after IsServiceArgs.
func ParseServiceArgs(argv []string) (*Descriptor, error) {
	if !IsServiceArgs(argv) {
		return nil, fmt.Errorf("handshake: argv is not a service invocation (%d args)", len(argv))
	}
	return &Descriptor{
		ServiceName: argv[2],
		OutputPipe:  argv[3],
		ErrorPipe:   argv[4],
		ReadyEvent:  argv[5],
		DoneEvent:   argv[6],
	}, nil
}

// InfiniteWait is the sentinel for an unbounded wait, matching the Win32
// INFINITE value.
const InfiniteWait = uint32(0xFFFFFFFF)

// maxFiniteSeconds is the collapse threshold: a seconds value at or above it
// becomes InfiniteWait, so 4294966 s is the largest finite budget.
const maxFiniteSeconds = 4294967

// TimeoutMilliseconds converts a seconds budget to milliseconds with an
// overflow guard: requests of ~49 days or more become InfiniteWait.
func TimeoutMilliseconds(seconds uint32) uint32 {
	if seconds >= maxFiniteSeconds {
		return InfiniteWait
	}
	return seconds * 1000
}
