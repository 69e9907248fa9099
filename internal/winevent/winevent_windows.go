//go:build windows

// Package winevent wraps the named manual-reset kernel events the two roles
// use to synchronize: the originator creates them in the Global namespace,
// the Session 0 worker opens them by name with modify-state rights only.
package winevent

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// Infinite is the unbounded-wait sentinel for Wait.
const Infinite = windows.INFINITE

// WaitResult classifies the outcome of a bounded wait.
type WaitResult int

const (
	Signaled WaitResult = iota
	TimedOut
	Failed
)

// Event is a named kernel event handle.
type Event struct {
	h    windows.Handle
	name string
}

// CreateManualReset creates a named manual-reset event, initially
// non-signaled, with the default DACL. The name should carry the Global\
// prefix so a Session 0 process can open it.
func CreateManualReset(name string) (*Event, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("winevent: invalid name %q: %w", name, err)
	}
	h, err := windows.CreateEvent(nil, 1 /* manual reset */, 0 /* non-signaled */, namePtr)
	if err != nil {
		return nil, fmt.Errorf("winevent: create %s: %w", name, err)
	}
	return &Event{h: h, name: name}, nil
}

// OpenForSignal opens an existing named event with modify-state rights,
// enough to Set it but not to wait on it.
func OpenForSignal(name string) (*Event, error) {
	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("winevent: invalid name %q: %w", name, err)
	}
	h, err := windows.OpenEvent(windows.EVENT_MODIFY_STATE, false, namePtr)
	if err != nil {
		return nil, fmt.Errorf("winevent: open %s: %w", name, err)
	}
	return &Event{h: h, name: name}, nil
}

// Name returns the event's kernel object name.
func (e *Event) Name() string { return e.name }

// Set signals the event.
func (e *Event) Set() error {
	if err := windows.SetEvent(e.h); err != nil {
		return fmt.Errorf("winevent: set %s: %w", e.name, err)
	}
	return nil
}

// Wait blocks until the event is signaled or timeoutMS elapses. Pass
// Infinite for an unbounded wait.
func (e *Event) Wait(timeoutMS uint32) (WaitResult, error) {
	status, err := windows.WaitForSingleObject(e.h, timeoutMS)
	switch status {
	case windows.WAIT_OBJECT_0:
		return Signaled, nil
	case uint32(windows.WAIT_TIMEOUT):
		return TimedOut, nil
	default:
		if err == nil {
			err = fmt.Errorf("wait status %#x", status)
		}
		return Failed, fmt.Errorf("winevent: wait %s: %w", e.name, err)
	}
}

// Close releases the handle. Calling it again is a no-op.
func (e *Event) Close() error {
	if e.h == 0 {
		return nil
	}
	err := windows.CloseHandle(e.h)
	e.h = 0
	return err
}
