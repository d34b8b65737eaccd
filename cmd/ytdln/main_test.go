package main

import (
	"bytes"
	"testing"

	"github.com/GDKAYKY/ytdln-open-sub000/pkg/client"
)

func TestProgressLine(t *testing.T) {
	tests := []struct {
		written, total int64
		want           string
	}{
		{512, 0, "512 B"},
		{1024, 2048, " 50.0% 1.0 KiB / 2.0 KiB"},
		{0, 100, "  0.0% 0 B / 100 B"},
	}

	for _, tt := range tests {
		if got := progressLine(tt.written, tt.total); got != tt.want {
			t.Errorf("progressLine(%d, %d) = %q, want %q", tt.written, tt.total, got, tt.want)
		}
	}
}

func TestStatusSuffix(t *testing.T) {
	st := &client.Status{Progress: client.Progress{Speed: "2.50 MiB/s", ETA: "00:20", Time: "N/A"}}
	if got := statusSuffix(st); got != " | 2.50 MiB/s ETA 00:20" {
		t.Errorf("statusSuffix() = %q", got)
	}
	if got := statusSuffix(&client.Status{Progress: client.Progress{Speed: "unknown", ETA: "unknown"}}); got != "" {
		t.Errorf("statusSuffix() = %q, want empty", got)
	}
}

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &countingWriter{w: &buf}
	w.Write([]byte("hello"))
	w.Write([]byte(" world"))
	if w.n.Load() != 11 || buf.String() != "hello world" {
		t.Errorf("n = %d, buf = %q", w.n.Load(), buf.String())
	}
}

func TestCheckSpace(t *testing.T) {
	dir := t.TempDir()
	if err := checkSpace(dir, 0); err != nil {
		t.Errorf("unknown length: %v", err)
	}
	if err := checkSpace(dir, 1); err != nil {
		t.Errorf("one byte: %v", err)
	}
	if freeSpace(dir) > 0 {
		if err := checkSpace(dir, 1<<62); err == nil {
			t.Error("expected error for oversized length")
		}
	}
}
