package dispatch

import (
	"fmt"
	"io"
	"path/filepath"
)

// printUsage writes the usage text to w. The -here, -t, and -o parameters
// belong to the framework; app-specific parameters must come after them.
func printUsage(w io.Writer, argv0, usageDescription, paramsHelp, errMsg string) {
	exe := filepath.Base(argv0)
	if errMsg != "" {
		fmt.Fprintln(w, errMsg)
	}
	if usageDescription != "" {
		fmt.Fprintf(w, "\n%s:\n%s\n", exe, usageDescription)
	}
	if paramsHelp == "" {
		paramsHelp = "(none)"
	}
	fmt.Fprintf(w, `
Usage:

    %[1]s [-here] [additional params]
    %[1]s [-t timeout] [-o outfile] [additional params]

  -here : run the code in the current session rather than in session 0
  -t    : max time in seconds for the session-0 service code to complete (default 30 seconds unless configured)
  -o    : redirect stdout from the session-0 code to named file

additional params (these must come last):
%s

`, exe, paramsHelp)
}
