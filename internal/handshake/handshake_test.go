package handshake

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestMintNameShapes(t *testing.T) {
	d, err := Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	cases := []struct {
		name   string
		value  string
		prefix string
	}{
		{"service", d.ServiceName, "RunInSession0_"},
		{"output pipe", d.OutputPipe, `\\.\pipe\Out_`},
		{"error pipe", d.ErrorPipe, `\\.\pipe\Err_`},
		{"ready event", d.ReadyEvent, `Global\ReadyToWrite_`},
		{"done event", d.DoneEvent, `Global\SvcDone_`},
	}
	for _, tc := range cases {
		if !strings.HasPrefix(tc.value, tc.prefix) {
			t.Errorf("%s name %q should start with %q", tc.name, tc.value, tc.prefix)
		}
		suffix := strings.TrimPrefix(tc.value, tc.prefix)
		if _, err := uuid.Parse(suffix); err != nil {
			t.Errorf("%s name suffix %q is not a uuid: %v", tc.name, suffix, err)
		}
	}
}

func TestMintNamesPairwiseDistinct(t *testing.T) {
	d, err := Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	names := []string{d.ServiceName, d.OutputPipe, d.ErrorPipe, d.ReadyEvent, d.DoneEvent}
	suffix := func(s string) string {
		i := strings.LastIndex(s, "_")
		return s[i+1:]
	}
	seen := make(map[string]string)
	for _, n := range names {
		id := suffix(n)
		if prev, ok := seen[id]; ok {
			t.Fatalf("uuid %q reused by %q and %q", id, prev, n)
		}
		seen[id] = n
	}
}

func TestBinaryPathNameQuotesExecutable(t *testing.T) {
	d := &Descriptor{
		ServiceName: "RunInSession0_a",
		OutputPipe:  `\\.\pipe\Out_b`,
		ErrorPipe:   `\\.\pipe\Err_c`,
		ReadyEvent:  `Global\ReadyToWrite_d`,
		DoneEvent:   `Global\SvcDone_e`,
	}
	bin := d.BinaryPathName(`C:\Program Files\tool\guiobjuse.exe`)
	if !strings.HasPrefix(bin, `"C:\Program Files\tool\guiobjuse.exe" `) {
		t.Fatalf("binary path must lead with the quoted executable: %q", bin)
	}

	// The SCM tokenizes the quoted path as one argument; the rest split on
	// spaces into exactly six more.
	rest := bin[strings.Index(bin, `" `)+2:]
	fields := strings.Fields(rest)
	if len(fields) != ServiceArgCount-1 {
		t.Fatalf("expected %d tokens after the program path, got %d: %q",
			ServiceArgCount-1, len(fields), rest)
	}
	if fields[0] != SvcSwitch {
		t.Errorf("first token after path = %q, want %q", fields[0], SvcSwitch)
	}
}

func TestServiceArgsRoundTrip(t *testing.T) {
	d, err := Mint()
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	argv := []string{
		`C:\tool\guiobjuse.exe`, SvcSwitch,
		d.ServiceName, d.OutputPipe, d.ErrorPipe, d.ReadyEvent, d.DoneEvent,
	}
	if !IsServiceArgs(argv) {
		t.Fatal("IsServiceArgs should accept a well-formed vector")
	}
	got, err := ParseServiceArgs(argv)
	if err != nil {
		t.Fatalf("ParseServiceArgs: %v", err)
	}
	if *got != *d {
		t.Errorf("round trip mismatch: got %+v want %+v", got, d)
	}
}

func TestIsServiceArgsRejectsWrongShape(t *testing.T) {
	cases := [][]string{
		nil,
		{"exe"},
		{"exe", SvcSwitch, "svc", "out", "err", "ready"},                 // 6 args
		{"exe", SvcSwitch, "svc", "out", "err", "ready", "done", "x"},    // 8 args
		{"exe", "-svcparams_deadbeef", "svc", "out", "err", "rdy", "dn"}, // wrong switch
		{"exe", "-here", "svc", "out", "err", "ready", "done"},
	}
	for _, argv := range cases {
		if IsServiceArgs(argv) {
			t.Errorf("IsServiceArgs(%v) should be false", argv)
		}
	}
}

func TestTimeoutMilliseconds(t *testing.T) {
	cases := []struct {
		seconds uint32
		want    uint32
	}{
		{1, 1000},
		{30, 30000},
		{4294966, 4294966000},
		{4294967, InfiniteWait},
		{5000000, InfiniteWait},
		{0xFFFFFFFF, InfiniteWait},
	}
	for _, tc := range cases {
		if got := TimeoutMilliseconds(tc.seconds); got != tc.want {
			t.Errorf("TimeoutMilliseconds(%d) = %d, want %d", tc.seconds, got, tc.want)
		}
	}
}
