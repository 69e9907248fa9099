// Package dispatch decides which role the current process plays — Session 0
// worker, in-process payload run, or cross-session originator — from the
// shape of the argument vector, then executes that role.
package dispatch

import (
	"strconv"

	"github.com/kestrelsec/sess0run/internal/handshake"
)

// Kind tags the triage outcome.
type Kind int

const (
	// KindWorker: started by the SCM in Session 0 with the handshake vector.
	KindWorker Kind = iota
	// KindDirect: -here, run the payload in this session.
	KindDirect
	// KindCrossing: full cross-session protocol.
	KindCrossing
	// KindUsage: help requested or the arguments are invalid.
	KindUsage
)

// Mode is the triage result. Only the fields relevant to Kind are set.
type Mode struct {
	Kind Kind

	// KindWorker
	Handshake *handshake.Descriptor

	// KindCrossing
	TimeoutSeconds uint32
	OutFile        string

	// KindDirect and KindCrossing
	PayloadArgs []string

	// KindUsage; empty for a plain help request
	UsageError string
}

func usage(err string) Mode {
	return Mode{Kind: KindUsage, UsageError: err}
}

// Triage classifies argv without side effects. defaultTimeoutSeconds seeds
// the crossing deadline when no -t is given.
func Triage(argv []string, inSession0 bool, defaultTimeoutSeconds uint32) Mode {
	if inSession0 && handshake.IsServiceArgs(argv) {
		d, err := handshake.ParseServiceArgs(argv)
		if err != nil {
			return usage(err.Error())
		}
		return Mode{Kind: KindWorker, Handshake: d}
	}

	var (
		here           bool
		timeoutSet     bool
		outFile        string
		payloadArgs    []string
		timeoutSeconds = defaultTimeoutSeconds
	)

	i := 1
	for i < len(argv) {
		switch argv[i] {
		case "/?", "-?", "-help", "/help":
			return usage("")
		case "-here":
			here = true
		case "-t":
			i++
			if i >= len(argv) {
				return usage("Missing arg for -t")
			}
			v, err := strconv.ParseUint(argv[i], 10, 32)
			if err != nil || v == 0 {
				return usage("Invalid arg for -t")
			}
			timeoutSeconds = uint32(v)
			timeoutSet = true
		case "-o":
			i++
			if i >= len(argv) {
				return usage("Missing arg for -o")
			}
			outFile = argv[i]
		default:
			// First unrecognized token: the rest belongs to the payload.
			payloadArgs = argv[i:]
			i = len(argv)
			continue
		}
		i++
	}

	if here && (timeoutSet || outFile != "") {
		return usage("Invalid combination of options")
	}

	if here {
		return Mode{Kind: KindDirect, PayloadArgs: payloadArgs}
	}
	return Mode{
		Kind:           KindCrossing,
		TimeoutSeconds: timeoutSeconds,
		OutFile:        outFile,
		PayloadArgs:    payloadArgs,
	}
}
