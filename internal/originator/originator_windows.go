//go:build windows

package originator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc/mgr"

	"github.com/kestrelsec/sess0run/internal/handshake"
	"github.com/kestrelsec/sess0run/internal/logging"
	"github.com/kestrelsec/sess0run/internal/winevent"
	"github.com/kestrelsec/sess0run/internal/winpipe"
)

var log = logging.L("originator")

// Run performs one cross-session invocation and returns the process exit
// code. Every kernel object created along the way is released before Run
// returns, on success and on every failure branch.
func Run(opts Options) int {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Errout == nil {
		opts.Errout = os.Stderr
	}

	inv := &invocation{
		opts:      opts,
		timeoutMS: handshake.TimeoutMilliseconds(opts.TimeoutSeconds),
	}
	code := inv.run()
	inv.teardown(code)
	return code
}

// invocation owns every resource of one invocation. run acquires them in
// protocol order; teardown releases them in reverse, escalating first when
// the run failed.
type invocation struct {
	opts      Options
	timeoutMS uint32

	scm     *mgr.Mgr
	desc    *handshake.Descriptor
	ready   *winevent.Event
	done    *winevent.Event
	outPipe *winpipe.Server
	errPipe *winpipe.Server
	service *mgr.Service

	readers sync.WaitGroup
}

func (inv *invocation) run() int {
	log.Debug("starting invocation", "timeoutMs", inv.timeoutMS)

	// Opening the SCM with full access doubles as the privilege probe, so
	// it comes first.
	m, err := mgr.Connect()
	if err != nil {
		if errors.Is(err, windows.ERROR_ACCESS_DENIED) {
			fmt.Fprintln(inv.opts.Errout, "This program requires administrative rights.")
		} else {
			fmt.Fprintf(inv.opts.Errout, "Cannot open service control manager: %v\n", err)
		}
		return ExitSetup
	}
	inv.scm = m

	desc, err := handshake.Mint()
	if err != nil {
		log.Error("name minting failed", logging.KeyError, err)
		return ExitSetup
	}
	inv.desc = desc
	log.Debug("invocation names",
		logging.KeyService, desc.ServiceName,
		"outputPipe", desc.OutputPipe,
		"errorPipe", desc.ErrorPipe,
		"readyEvent", desc.ReadyEvent,
		"doneEvent", desc.DoneEvent)

	if code := inv.createEvents(); code != ExitOK {
		return code
	}
	if code := inv.createPipes(); code != ExitOK {
		return code
	}
	if code := inv.installService(); code != ExitOK {
		return code
	}

	if err := inv.service.Start(inv.opts.PayloadArgs...); err != nil {
		log.Error("service start failed", logging.KeyService, desc.ServiceName, logging.KeyError, err)
		return ExitSvcStart
	}
	log.Debug("service started")

	switch result, err := inv.ready.Wait(readinessTimeoutMS); result {
	case winevent.Signaled:
		log.Debug("worker signaled ready to write")
	case winevent.TimedOut:
		log.Error("timed out waiting for worker readiness")
		return ExitReadyTimeout
	default:
		log.Error("readiness wait anomaly", logging.KeyError, err)
		return ExitReadyWait
	}

	return inv.stream()
}

func (inv *invocation) createEvents() int {
	var err error
	if inv.ready, err = winevent.CreateManualReset(inv.desc.ReadyEvent); err != nil {
		log.Error("cannot create event object", logging.KeyError, err)
	}
	if inv.done, err = winevent.CreateManualReset(inv.desc.DoneEvent); err != nil {
		log.Error("cannot create event object", logging.KeyError, err)
	}
	if inv.ready == nil || inv.done == nil {
		return ExitEventCreate
	}
	return ExitOK
}

func (inv *invocation) createPipes() int {
	sa, err := winpipe.SecurityAttributesFromSDDL(PipeSDDL)
	if err != nil {
		log.Error("pipe security descriptor parse failed", logging.KeyError, err)
		return ExitACL
	}

	if inv.outPipe, err = winpipe.Listen(inv.desc.OutputPipe, sa); err != nil {
		log.Error("cannot create named pipe", logging.KeyPipe, inv.desc.OutputPipe, logging.KeyError, err)
	}
	if inv.errPipe, err = winpipe.Listen(inv.desc.ErrorPipe, sa); err != nil {
		log.Error("cannot create named pipe", logging.KeyPipe, inv.desc.ErrorPipe, logging.KeyError, err)
	}
	if inv.outPipe == nil || inv.errPipe == nil {
		return ExitPipeCreate
	}
	return ExitOK
}

func (inv *invocation) installService() int {
	exePath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(inv.opts.Errout, "Cannot resolve executable path: %v\n", err)
		return ExitNoExePath
	}

	// The service command line is built verbatim (quoted path plus the six
	// handshake tokens), so the worker-side detector sees the exact
	// argument count it requires. mgr.CreateService would re-escape it.
	namePtr, err := windows.UTF16PtrFromString(inv.desc.ServiceName)
	if err != nil {
		log.Error("invalid service name", logging.KeyError, err)
		return ExitSvcCreate
	}
	binPtr, err := windows.UTF16PtrFromString(inv.desc.BinaryPathName(exePath))
	if err != nil {
		log.Error("invalid binary path", logging.KeyError, err)
		return ExitSvcCreate
	}

	h, err := windows.CreateService(
		inv.scm.Handle,
		namePtr,
		namePtr,
		windows.SERVICE_ALL_ACCESS,
		windows.SERVICE_WIN32_OWN_PROCESS,
		windows.SERVICE_DEMAND_START,
		windows.SERVICE_ERROR_NORMAL,
		binPtr,
		nil, nil, nil,
		nil, // LocalSystem account
		nil, // no password
	)
	if err != nil {
		fmt.Fprintf(inv.opts.Errout, "Cannot create service: %v\n", err)
		return ExitSvcCreate
	}
	inv.service = &mgr.Service{Name: inv.desc.ServiceName, Handle: h}
	log.Debug("service created", logging.KeyService, inv.desc.ServiceName)
	return ExitOK
}

// stream drains both pipes into the destination sinks and waits,
// conjunctively, for the completion event and both readers, bounded by the
// invocation deadline.
func (inv *invocation) stream() int {
	readersDone := make(chan struct{})
	inv.readers.Add(2)
	go inv.drain(inv.outPipe, inv.opts.Output, "stdout")
	go inv.drain(inv.errPipe, inv.opts.Errout, "stderr")
	go func() {
		inv.readers.Wait()
		close(readersDone)
	}()

	type waitOutcome struct {
		result winevent.WaitResult
		err    error
	}
	evCh := make(chan waitOutcome, 1)
	go func() {
		r, err := inv.done.Wait(inv.timeoutMS)
		evCh <- waitOutcome{r, err}
	}()

	var deadlineCh <-chan time.Time
	if inv.timeoutMS != handshake.InfiniteWait {
		t := time.NewTimer(time.Duration(inv.timeoutMS) * time.Millisecond)
		defer t.Stop()
		deadlineCh = t.C
	}

	evOK, readersOK := false, false
	for !evOK || !readersOK {
		select {
		case o := <-evCh:
			switch o.result {
			case winevent.Signaled:
				evOK = true
			case winevent.TimedOut:
				log.Error("timed out waiting for completion event")
				return ExitDeadline
			default:
				log.Error("completion wait anomaly", logging.KeyError, o.err)
				return ExitDoneWait
			}
		case <-readersDone:
			readersOK = true
		case <-deadlineCh:
			log.Error("deadline expired before readers finished")
			return ExitDeadline
		}
	}

	log.Debug("worker done and its output consumed")
	return ExitOK
}

// drain copies one pipe to its destination sink, byte-preserving, until
// end-of-stream or cancellation. It owns neither handle; lifecycle stays
// with the invocation.
func (inv *invocation) drain(pipe *winpipe.Server, dst io.Writer, stream string) {
	defer inv.readers.Done()

	if err := pipe.Connect(); err != nil {
		if !errors.Is(err, windows.ERROR_OPERATION_ABORTED) {
			log.Error("pipe connect failed", "stream", stream, logging.KeyError, err)
		}
		return
	}

	buf := make([]byte, readBufSize)
	for {
		n, err := pipe.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			if werr != nil {
				log.Error("write to destination failed", "stream", stream, logging.KeyError, werr)
			} else if w != n {
				log.Warn("short write to destination", "stream", stream, "read", n, "wrote", w)
			}
		}
		switch {
		case err == nil && n > 0:
			continue
		case err == nil:
			// Zero-byte read: end of stream.
			log.Debug("end of stream", "stream", stream)
		case errors.Is(err, windows.ERROR_BROKEN_PIPE):
			// Normal end-of-stream after the worker closed its side.
			log.Debug("pipe closed by worker", "stream", stream)
		case errors.Is(err, windows.ERROR_OPERATION_ABORTED):
			// Deadline enforcement cancelled the read.
			log.Debug("read cancelled", "stream", stream)
		default:
			log.Error("pipe read failed", "stream", stream, logging.KeyError, err)
		}
		return
	}
}

// cancelReaders aborts any in-flight pipe I/O and closes the pipes. The
// reader goroutines return with ERROR_OPERATION_ABORTED and exit.
func (inv *invocation) cancelReaders() {
	for _, p := range []*winpipe.Server{inv.outPipe, inv.errPipe} {
		if p != nil {
			p.Cancel()
			p.Close()
		}
	}
}

// teardown releases everything, on success and failure alike. A non-zero
// exit escalates first: reader I/O is cancelled and the service process, if
// any, is terminated outright — a stop control could hang forever on an
// unresponsive control handler, so none is ever sent.
func (inv *invocation) teardown(code int) {
	log.Debug("cleaning up", "exitCode", code)

	inv.cancelReaders()

	if inv.ready != nil {
		inv.ready.Close()
	}
	if inv.done != nil {
		inv.done.Close()
	}

	if inv.service != nil {
		if code != ExitOK {
			inv.terminateServiceProcess()
		}
		if err := inv.service.Delete(); err != nil {
			log.Error("cannot delete service", logging.KeyService, inv.service.Name, logging.KeyError, err)
		} else {
			log.Debug("service deleted", logging.KeyService, inv.service.Name)
		}
		inv.service.Close()
	}

	if inv.scm != nil {
		inv.scm.Disconnect()
	}
}

// terminateServiceProcess kills the worker process by PID with the stable
// -32 sentinel, then lets teardown delete the service.
func (inv *invocation) terminateServiceProcess() {
	st, err := inv.service.Query()
	if err != nil {
		log.Error("cannot query service for its PID", logging.KeyError, err)
		return
	}
	if st.ProcessId == 0 {
		return
	}
	log.Debug("terminating service process", "pid", st.ProcessId)
	h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, st.ProcessId)
	if err != nil {
		log.Error("cannot open service process to terminate it", "pid", st.ProcessId, logging.KeyError, err)
		return
	}
	defer windows.CloseHandle(h)
	if err := windows.TerminateProcess(h, terminateExitCode); err != nil {
		log.Error("cannot terminate service process", "pid", st.ProcessId, logging.KeyError, err)
	}
}
