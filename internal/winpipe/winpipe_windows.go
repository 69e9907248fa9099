//go:build windows

// Package winpipe provides the originator's inbound named-pipe endpoints:
// single-instance, byte-mode pipes protected by a caller-supplied ACL. The
// worker side connects as an ordinary file client with write access.
package winpipe

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// SecurityAttributesFromSDDL parses an SDDL string into security attributes
// with handle inheritance disabled.
func SecurityAttributesFromSDDL(sddl string) (*windows.SecurityAttributes, error) {
	sd, err := windows.SecurityDescriptorFromString(sddl)
	if err != nil {
		return nil, fmt.Errorf("winpipe: parse security descriptor %q: %w", sddl, err)
	}
	return &windows.SecurityAttributes{
		Length:             uint32(unsafe.Sizeof(windows.SecurityAttributes{})),
		SecurityDescriptor: sd,
		InheritHandle:      0,
	}, nil
}

// Server is one inbound named pipe. The first-instance flag makes a second
// pipe with the same name fail, so a name can never be hijacked between
// creation and connection.
type Server struct {
	h    windows.Handle
	name string
}

// Listen creates the pipe: inbound, byte-mode, single instance, system
// default buffering.
func Listen(name string, sa *windows.SecurityAttributes) (*Server, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("winpipe: invalid name %q: %w", name, err)
	}
	h, err := windows.CreateNamedPipe(
		namePtr,
		windows.PIPE_ACCESS_INBOUND|windows.FILE_FLAG_FIRST_PIPE_INSTANCE,
		windows.PIPE_TYPE_BYTE|windows.PIPE_WAIT,
		1, // single instance
		0, // default output buffer
		0, // default input buffer
		0, // default timeout
		sa,
	)
	if err != nil {
		return nil, fmt.Errorf("winpipe: create %s: %w", name, err)
	}
	return &Server{h: h, name: name}, nil
}

// Name returns the pipe path.
func (s *Server) Name() string { return s.name }

// Connect completes the server side of the connection. A client that
// already opened the pipe surfaces as ERROR_PIPE_CONNECTED, which is
// success.
func (s *Server) Connect() error {
	err := windows.ConnectNamedPipe(s.h, nil)
	if err != nil && err != windows.ERROR_PIPE_CONNECTED {
		return fmt.Errorf("winpipe: connect %s: %w", s.name, err)
	}
	return nil
}

// Read blocks for the next chunk of bytes. It returns the raw Windows
// error: ERROR_BROKEN_PIPE is the normal end-of-stream after the client
// exits, ERROR_OPERATION_ABORTED means the read was cancelled.
func (s *Server) Read(p []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(s.h, p, &n, nil)
	return int(n), err
}

// Cancel aborts any in-flight Connect or Read on the pipe; the blocked
// caller returns with ERROR_OPERATION_ABORTED.
func (s *Server) Cancel() {
	windows.CancelIoEx(s.h, nil)
}

// Close releases the pipe handle. Calling it again is a no-op.
func (s *Server) Close() error {
	if s.h == 0 || s.h == windows.InvalidHandle {
		return nil
	}
	err := windows.CloseHandle(s.h)
	s.h = 0
	return err
}
