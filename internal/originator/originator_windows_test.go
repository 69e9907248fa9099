//go:build windows

package originator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"

	"github.com/kestrelsec/sess0run/internal/winpipe"
)

func testPipeName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf(`\\.\pipe\sess0run-test-%d-%d`, os.Getpid(), time.Now().UnixNano())
}

func TestPipeSDDLParses(t *testing.T) {
	sa, err := winpipe.SecurityAttributesFromSDDL(PipeSDDL)
	if err != nil {
		t.Fatalf("SecurityAttributesFromSDDL(%q): %v", PipeSDDL, err)
	}
	if sa.SecurityDescriptor == nil {
		t.Fatal("nil security descriptor")
	}
	if sa.InheritHandle != 0 {
		t.Fatal("pipe handles must not be inheritable")
	}
}

// lockedBuffer lets the drain goroutine and the test touch the sink safely.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

func TestDrainPreservesBytes(t *testing.T) {
	name := testPipeName(t)
	pipe, err := winpipe.Listen(name, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer pipe.Close()

	var dst lockedBuffer
	inv := &invocation{}
	inv.readers.Add(1)
	go inv.drain(pipe, &dst, "stdout")

	// More than one read buffer in a single burst must arrive intact.
	payload := bytes.Repeat([]byte("0123456789abcdef"), (readBufSize/16)+1024)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := winio.DialPipeAccess(ctx, name, windows.GENERIC_WRITE)
	if err != nil {
		t.Fatalf("DialPipeAccess: %v", err)
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	conn.Close()

	done := make(chan struct{})
	go func() {
		inv.readers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("reader did not finish")
	}

	if got := dst.Bytes(); !bytes.Equal(got, payload) {
		t.Fatalf("byte stream altered: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestCancelReadersUnblocksConnect(t *testing.T) {
	name := testPipeName(t)
	pipe, err := winpipe.Listen(name, nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	inv := &invocation{outPipe: pipe}
	inv.readers.Add(1)
	var dst lockedBuffer
	go inv.drain(pipe, &dst, "stdout")

	// No client ever connects; cancellation must unblock the reader.
	time.Sleep(100 * time.Millisecond)
	inv.cancelReaders()

	done := make(chan struct{})
	go func() {
		inv.readers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("cancelReaders did not unblock the reader")
	}
}

func TestTerminateExitCodeSentinel(t *testing.T) {
	code := terminateExitCode
	if int32(code) != -32 {
		t.Fatalf("termination sentinel = %d, want -32", int32(code))
	}
}
