// guiobjuse lists the processes of a terminal-services session together
// with their USER and GDI object counts. By default it transports itself
// into Session 0 through a transient LocalSystem service and streams the
// results back; with -here it inspects the current session in-process.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kestrelsec/sess0run/internal/config"
	"github.com/kestrelsec/sess0run/internal/dispatch"
	"github.com/kestrelsec/sess0run/internal/guiobj"
	"github.com/kestrelsec/sess0run/internal/logging"
)

const usageDescription = `    Lists processes in session 0 and the numbers of USER and GDI
    resources they've used, as tab-delimited text with headers.
    Requires administrative rights.
    To inspect processes in the current session, use the -here
    command line option (requires admin rights to inspect
    processes running in other security contexts).`

const paramsHelp = `  -a : Show information about all processes, including processes
       with no User/GDI objects and/or that cannot be opened.
       By default, processes with no User or GDI objects or that
       cannot be opened are not listed.`

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot load config, using defaults: %v\n", err)
		cfg = config.Default()
	}

	var traceOut io.Writer
	if cfg.TraceFile != "" {
		f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: cannot open trace file %s: %v\n", cfg.TraceFile, err)
		} else {
			defer f.Close()
			traceOut = f
		}
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, traceOut)

	os.Exit(dispatch.Run(os.Args, guiobj.Run, dispatch.RunConfig{
		UsageDescription:      usageDescription,
		ParamsHelp:            paramsHelp,
		DefaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
	}))
}
