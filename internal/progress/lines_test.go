package progress

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func collect(t *testing.T, r io.Reader, maxLen int) []string {
	t.Helper()
	var lines []string
	if err := EachLine(r, maxLen, func(line string) { lines = append(lines, line) }); err != nil {
		t.Fatalf("EachLine() error = %v", err)
	}
	return lines
}

func TestEachLine_CarriageReturns(t *testing.T) {
	input := "[download]   1.0% of 10MiB\r[download]   2.0% of 10MiB\r\n" +
		"frame= 1 fps=0.0\n\n\nlast line without newline"

	got := collect(t, strings.NewReader(input), 0)
	want := []string{
		"[download]   1.0% of 10MiB",
		"[download]   2.0% of 10MiB",
		"frame= 1 fps=0.0",
		"last line without newline",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines %q, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEachLine_SplitAcrossReads(t *testing.T) {
	input := "[download]  50.0% of ~100.00 MiB at  2.50 MiB/s ETA 00:00:20\rframe= 1000 fps=30.0\n"
	got := collect(t, iotest.OneByteReader(strings.NewReader(input)), 0)
	if len(got) != 2 {
		t.Fatalf("got %q, want 2 lines", got)
	}
	if _, ok := ParseExtractorLine(got[0]); !ok {
		t.Errorf("first line %q not parsed", got[0])
	}
	if _, ok := ParseTranscoderLine(got[1]); !ok {
		t.Errorf("second line %q not parsed", got[1])
	}
}

func TestEachLine_LongLineIsCut(t *testing.T) {
	long := strings.Repeat("x", 100)
	got := collect(t, strings.NewReader(long+"\nok\n"), 32)

	var total int
	for _, line := range got[:len(got)-1] {
		if len(line) > 32 {
			t.Errorf("token of %d bytes exceeds limit", len(line))
		}
		total += len(line)
	}
	if total != 100 {
		t.Errorf("long line bytes = %d, want 100", total)
	}
	if got[len(got)-1] != "ok" {
		t.Errorf("last line = %q, want ok", got[len(got)-1])
	}
}

type failingReader struct {
	data   *bytes.Reader
	failed bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.failed {
		r.failed = true
		return 0, errors.New("read failed")
	}
	return r.data.Read(p)
}

func TestEachLine_DrainsAfterError(t *testing.T) {
	r := &failingReader{data: bytes.NewReader([]byte("remaining output\n"))}
	err := EachLine(r, 0, func(string) {})
	if err == nil {
		t.Fatal("expected scanner error")
	}
	if r.data.Len() != 0 {
		t.Errorf("%d bytes left unread, want drained", r.data.Len())
	}
}
