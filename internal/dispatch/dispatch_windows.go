//go:build windows

package dispatch

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/windows"

	"github.com/kestrelsec/sess0run/internal/logging"
	"github.com/kestrelsec/sess0run/internal/originator"
	"github.com/kestrelsec/sess0run/internal/worker"
)

var log = logging.L("dispatch")

// RunConfig carries the app-specific usage text and the configured default
// deadline.
type RunConfig struct {
	UsageDescription      string
	ParamsHelp            string
	DefaultTimeoutSeconds uint32
}

// Run triages argv and executes the selected role, returning the process
// exit code.
func Run(argv []string, payload worker.Payload, cfg RunConfig) int {
	inS0, err := currentSessionIsZero()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Unable to determine which session the current process is in.")
		return -1
	}

	mode := Triage(argv, inS0, cfg.DefaultTimeoutSeconds)
	switch mode.Kind {
	case KindWorker:
		log.Debug("entering worker role", logging.KeyService, mode.Handshake.ServiceName)
		return worker.Run(payload, mode.Handshake)

	case KindDirect:
		log.Debug("running payload in this session", "args", mode.PayloadArgs)
		return payload(mode.PayloadArgs)

	case KindUsage:
		printUsage(os.Stderr, argv[0], cfg.UsageDescription, cfg.ParamsHelp, mode.UsageError)
		return -1
	}

	// Crossing: even a process already in Session 0 without the handshake
	// takes this path, so deadline and redirection semantics stay uniform.
	out := io.Writer(os.Stdout)
	if mode.OutFile != "" {
		f, err := os.Create(mode.OutFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open %s: %v\n", mode.OutFile, err)
			printUsage(os.Stderr, argv[0], cfg.UsageDescription, cfg.ParamsHelp, "")
			return -1
		}
		defer f.Close()
		out = f
	}

	log.Debug("entering originator role",
		"timeoutSeconds", mode.TimeoutSeconds, "outFile", mode.OutFile)
	return originator.Run(originator.Options{
		TimeoutSeconds: mode.TimeoutSeconds,
		Output:         out,
		Errout:         os.Stderr,
		PayloadArgs:    mode.PayloadArgs,
	})
}

func currentSessionIsZero() (bool, error) {
	var sessionID uint32
	if err := windows.ProcessIdToSessionId(windows.GetCurrentProcessId(), &sessionID); err != nil {
		return false, err
	}
	return sessionID == 0, nil
}
