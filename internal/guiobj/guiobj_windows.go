//go:build windows

package guiobj

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unsafe"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/windows"

	"github.com/kestrelsec/sess0run/internal/logging"
	"github.com/kestrelsec/sess0run/internal/svcquery"
)

var log = logging.L("guiobj")

var (
	modWtsapi32                 = windows.NewLazySystemDLL("wtsapi32.dll")
	procWTSEnumerateProcessesEx = modWtsapi32.NewProc("WTSEnumerateProcessesExW")
	procWTSFreeMemoryEx         = modWtsapi32.NewProc("WTSFreeMemoryExW")

	modUser32           = windows.NewLazySystemDLL("user32.dll")
	procGetGuiResources = modUser32.NewProc("GetGuiResources")
)

const (
	wtsCurrentServerHandle   = 0
	wtsTypeProcessInfoLevel0 = 0

	grGdiObjects      = 0
	grUserObjects     = 1
	grGdiObjectsPeak  = 2
	grUserObjectsPeak = 4
)

// grGlobal is the pseudo-handle selecting session-wide usage (HANDLE -2).
var grGlobal = windows.Handle(^uintptr(1))

// wtsProcessInfo mirrors WTS_PROCESS_INFOW.
type wtsProcessInfo struct {
	SessionID   uint32
	ProcessID   uint32
	ProcessName *uint16
	UserSid     *windows.SID
}

// Run lists the processes of the current terminal-services session and
// their USER/GDI object counts. The only recognized argument is -a, which
// also shows processes with zero counts or that cannot be opened.
func Run(args []string) int {
	showAll := false
	for _, a := range args {
		if a != "-a" {
			fmt.Fprintf(os.Stderr, "Unrecognized command line option: %s\n", a)
			return -1
		}
		showAll = true
	}

	var sessionID uint32
	if err := windows.ProcessIdToSessionId(windows.GetCurrentProcessId(), &sessionID); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to retrieve current TS session ID: %v\n", err)
		return -1
	}

	procs, free, err := enumerateProcesses(sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot enumerate processes in session %d: %v\n", sessionID, err)
		return -2
	}
	defer free()

	servicesByPID, err := svcquery.ServicesByPID()
	if err != nil {
		// The Services column degrades to empty.
		log.Warn("service lookup unavailable", logging.KeyError, err)
	}

	fmt.Println(Header)

	var totals Counts
	for _, p := range procs {
		// PID 0 is not a real process.
		if p.ProcessID == 0 {
			continue
		}

		row := Row{
			Session:  p.SessionID,
			PID:      strconv.FormatUint(uint64(p.ProcessID), 10),
			Name:     windows.UTF16PtrToString(p.ProcessName),
			Services: strings.Join(servicesByPID[p.ProcessID], " "),
		}
		if p.UserSid != nil {
			row.UserSID = p.UserSid.String()
			if account, domain, _, err := p.UserSid.LookupAccount(""); err == nil {
				row.UserName = domain + `\` + account
			}
		}

		h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, p.ProcessID)
		if err != nil {
			if showAll {
				row.Counts = errorColumns(err)
				fmt.Println(row)
			}
			continue
		}

		c := Counts{
			User:     guiResources(h, grUserObjects),
			UserPeak: guiResources(h, grUserObjectsPeak),
			Gdi:      guiResources(h, grGdiObjects),
			GdiPeak:  guiResources(h, grGdiObjectsPeak),
		}
		windows.CloseHandle(h)
		totals.Add(c)

		row.PPID = parentPID(p.ProcessID)

		if showAll || c.Any() {
			row.Counts = c.columns()
			fmt.Println(row)
		}
	}

	fmt.Println(totalRow(sessionID, totals))

	sessionWide := Counts{
		User:     guiResources(grGlobal, grUserObjects),
		UserPeak: guiResources(grGlobal, grUserObjectsPeak),
		Gdi:      guiResources(grGlobal, grGdiObjects),
		GdiPeak:  guiResources(grGlobal, grGdiObjectsPeak),
	}
	fmt.Println(globalRow(sessionID, sessionWide))

	return 0
}

func enumerateProcesses(sessionID uint32) ([]wtsProcessInfo, func(), error) {
	var (
		level uint32 // info level 0: WTS_PROCESS_INFOW
		pInfo uintptr
		count uint32
	)
	r1, _, callErr := procWTSEnumerateProcessesEx.Call(
		wtsCurrentServerHandle,
		uintptr(unsafe.Pointer(&level)),
		uintptr(sessionID),
		uintptr(unsafe.Pointer(&pInfo)),
		uintptr(unsafe.Pointer(&count)),
	)
	if r1 == 0 {
		return nil, nil, callErr
	}
	free := func() {
		procWTSFreeMemoryEx.Call(wtsTypeProcessInfoLevel0, pInfo, uintptr(count))
	}

	size := unsafe.Sizeof(wtsProcessInfo{})
	procs := make([]wtsProcessInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		procs = append(procs, *(*wtsProcessInfo)(unsafe.Pointer(pInfo + uintptr(i)*size)))
	}
	return procs, free, nil
}

func guiResources(h windows.Handle, flags uint32) uint32 {
	r1, _, _ := procGetGuiResources.Call(uintptr(h), uintptr(flags))
	return uint32(r1)
}

// parentPID resolves the parent process id, empty when unavailable.
func parentPID(pid uint32) string {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ""
	}
	ppid, err := p.Ppid()
	if err != nil {
		return ""
	}
	return strconv.FormatInt(int64(ppid), 10)
}
