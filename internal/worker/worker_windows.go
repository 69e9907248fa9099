//go:build windows

package worker

import (
	"errors"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"

	"github.com/kestrelsec/sess0run/internal/handshake"
	"github.com/kestrelsec/sess0run/internal/logging"
	"github.com/kestrelsec/sess0run/internal/winevent"
)

var log = logging.L("worker")

// Run executes the worker role: wire the standard streams to the
// originator's pipes, signal readiness, host the payload under the service
// dispatcher, and signal completion. The completion signal is unconditional
// on the dispatcher's outcome.
func Run(payload Payload, d *handshake.Descriptor) int {
	redirectStreams(d)
	signalEvent(d.ReadyEvent)

	exitCode := 0
	h := &handler{payload: payload}
	if err := svc.Run(d.ServiceName, h); err != nil {
		var errno syscall.Errno
		if errors.As(err, &errno) && errno == windows.ERROR_FAILED_SERVICE_CONTROLLER_CONNECT {
			log.Error("could not connect to the service controller; " +
				"this instance is designed to be started by the Service Control Manager, not from a command line")
		} else {
			log.Error("service dispatcher failed", logging.KeyError, err)
		}
		if errno != 0 {
			exitCode = int(errno)
		} else {
			exitCode = 1
		}
	}

	signalEvent(d.DoneEvent)
	return exitCode
}

// redirectStreams re-opens stdout and stderr onto the pipe clients. A
// failure leaves the stream detached: the payload then produces no visible
// output on that stream, which is the accepted degraded mode.
func redirectStreams(d *handshake.Descriptor) {
	if f, err := os.OpenFile(d.OutputPipe, os.O_WRONLY, 0); err != nil {
		log.Error("cannot open output pipe", logging.KeyPipe, d.OutputPipe, logging.KeyError, err)
	} else {
		if err := windows.SetStdHandle(windows.STD_OUTPUT_HANDLE, windows.Handle(f.Fd())); err != nil {
			log.Error("SetStdHandle stdout", logging.KeyError, err)
		}
		os.Stdout = f
	}

	if f, err := os.OpenFile(d.ErrorPipe, os.O_WRONLY, 0); err != nil {
		log.Error("cannot open error pipe", logging.KeyPipe, d.ErrorPipe, logging.KeyError, err)
	} else {
		if err := windows.SetStdHandle(windows.STD_ERROR_HANDLE, windows.Handle(f.Fd())); err != nil {
			log.Error("SetStdHandle stderr", logging.KeyError, err)
		}
		os.Stderr = f
	}
}

// signalEvent opens the named event with modify-state rights, sets it, and
// closes the handle again. Failures are traced only; the protocol degrades
// to the originator's timeouts.
func signalEvent(name string) {
	ev, err := winevent.OpenForSignal(name)
	if err != nil {
		log.Error("cannot open event", logging.KeyError, err)
		return
	}
	defer ev.Close()
	if err := ev.Set(); err != nil {
		log.Error("cannot signal event", logging.KeyError, err)
	}
}

// handler hosts the payload for the SCM. The payload pointer is handler
// state rather than a module global; it is assigned exactly once, before
// svc.Run.
type handler struct {
	payload Payload
	ledger  Ledger
}

const acceptedControls = svc.AcceptStop | svc.AcceptShutdown

// Execute is the service-main body. It reports start-pending then running,
// runs the payload with the start arguments (args[0] is the service name),
// and returns the payload's exit code for the final stopped report.
func (h *handler) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	changes <- svcStatus(h.ledger.Transition(StartPending))
	changes <- svcStatus(h.ledger.Transition(Running))

	done := make(chan int, 1)
	go func() {
		if h.payload == nil {
			log.Error("no payload to run")
			done <- 0
			return
		}
		var payloadArgs []string
		if len(args) > 1 {
			payloadArgs = args[1:]
		}
		done <- h.payload(payloadArgs)
	}()

	for {
		select {
		case cr := <-r:
			switch cr.Cmd {
			case svc.Interrogate:
				changes <- cr.CurrentStatus
			case svc.Stop, svc.Shutdown:
				// The payload is not interruptible; report stop-pending and
				// let it return.
				changes <- svcStatus(h.ledger.Transition(StopPending))
			default:
				log.Warn("unexpected SCM control request", "cmd", uint32(cr.Cmd))
			}
		case code := <-done:
			h.ledger.TransitionExit(Stopped, uint32(int32(code)))
			log.Info("payload completed", "exitCode", code)
			return false, uint32(int32(code))
		}
	}
}

func svcStatus(r Report) svc.Status {
	return svc.Status{
		State:         svcState(r.State),
		Accepts:       acceptedControls,
		CheckPoint:    r.CheckPoint,
		WaitHint:      uint32(r.WaitHint / time.Millisecond),
		Win32ExitCode: r.ExitCode,
	}
}

func svcState(s State) svc.State {
	switch s {
	case StartPending:
		return svc.StartPending
	case Running:
		return svc.Running
	case StopPending:
		return svc.StopPending
	case Paused:
		return svc.Paused
	case PausePending:
		return svc.PausePending
	case ContinuePending:
		return svc.ContinuePending
	default:
		return svc.Stopped
	}
}
