//go:build windows

// Package svcquery answers which services are hosted in which processes,
// using the service control manager's active database.
package svcquery

import (
	"fmt"
	"sort"

	"golang.org/x/sys/windows/svc/mgr"
)

// ServicesByPID maps each service-hosting process id to the names of the
// services it hosts. Services that are not running (PID 0) are omitted.
// It connects to the SCM and opens each service with full access, so it
// needs administrative rights; without them it returns an error.
func ServicesByPID() (map[uint32][]string, error) {
	m, err := mgr.Connect()
	if err != nil {
		return nil, fmt.Errorf("svcquery: connect to SCM: %w", err)
	}
	defer m.Disconnect()

	names, err := m.ListServices()
	if err != nil {
		return nil, fmt.Errorf("svcquery: list services: %w", err)
	}

	byPID := make(map[uint32][]string)
	for _, name := range names {
		s, err := m.OpenService(name)
		if err != nil {
			continue
		}
		status, err := s.Query()
		s.Close()
		if err != nil || status.ProcessId == 0 {
			continue
		}
		byPID[status.ProcessId] = append(byPID[status.ProcessId], name)
	}

	for _, svcs := range byPID {
		sort.Strings(svcs)
	}
	return byPID, nil
}
