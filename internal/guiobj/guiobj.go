// Package guiobj is the demonstration payload: it lists the processes of a
// terminal-services session together with their USER and GDI object counts,
// as tab-delimited UTF-8 text with a header row.
package guiobj

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// Header is the first output line.
const Header = "Session\tPID\tProcess name\tPPID\tServices\tUser SID\tUser name\t" +
	"USER objects\tUSER objects peak\tGDI objects\tGDI objects peak"

// Counts holds one process's GUI resource usage.
type Counts struct {
	User     uint32
	UserPeak uint32
	Gdi      uint32
	GdiPeak  uint32
}

// Any reports whether any counter is non-zero. Rows with all-zero counts
// are suppressed unless show-all is requested.
func (c Counts) Any() bool {
	return c.User > 0 || c.UserPeak > 0 || c.Gdi > 0 || c.GdiPeak > 0
}

// Add accumulates per-process counts into a running total.
func (c *Counts) Add(o Counts) {
	c.User += o.User
	c.UserPeak += o.UserPeak
	c.Gdi += o.Gdi
	c.GdiPeak += o.GdiPeak
}

func (c Counts) columns() [4]string {
	return [4]string{
		fmt.Sprint(c.User),
		fmt.Sprint(c.UserPeak),
		fmt.Sprint(c.Gdi),
		fmt.Sprint(c.GdiPeak),
	}
}

// Row is one output line. PID carries a number for process rows, or the
// TOTAL / GR_GLOBAL markers for the summary rows.
type Row struct {
	Session  uint32
	PID      string
	Name     string
	PPID     string
	Services string
	UserSID  string
	UserName string
	Counts   [4]string
}

func (r Row) String() string {
	fields := []string{
		fmt.Sprint(r.Session),
		r.PID,
		r.Name,
		r.PPID,
		r.Services,
		r.UserSID,
		r.UserName,
		r.Counts[0],
		r.Counts[1],
		r.Counts[2],
		r.Counts[3],
	}
	return strings.Join(fields, "\t")
}

func countRow(session uint32, pid, name string, c Counts) Row {
	return Row{Session: session, PID: pid, Name: name, Counts: c.columns()}
}

func totalRow(session uint32, totals Counts) Row {
	return countRow(session, "TOTAL", "[enumerated processes]", totals)
}

func globalRow(session uint32, c Counts) Row {
	return countRow(session, "GR_GLOBAL", "[Session-wide usage]", c)
}

// errorColumns fills the four count columns with the failure that prevented
// opening the process, alternating code and message like the detail rows
// alternate current and peak.
func errorColumns(err error) [4]string {
	code := "Error"
	var errno syscall.Errno
	if errors.As(err, &errno) {
		code = fmt.Sprintf("Error %d", uint32(errno))
	}
	msg := err.Error()
	return [4]string{code, msg, code, msg}
}
