package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/GDKAYKY/ytdln-open-sub000/pkg/client"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	server := flag.String("server", envOr("YTDLN_SERVER", "http://localhost:9850"), "Server base URL")
	format := flag.String("format", "best", "Format: best, audio, <N>p or a raw selector")
	audioOnly := flag.Bool("audio", false, "Extract audio only")
	output := flag.String("o", "", "Output file (default: server-provided filename)")
	outDir := flag.String("dir", ".", "Output directory when -o is not set")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <url>\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("ytdln %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.NewClient(*server, 30*time.Second)
	if err := run(ctx, c, client.CreateRequest{
		URL:       flag.Arg(0),
		Format:    *format,
		AudioOnly: *audioOnly,
	}, *output, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, req client.CreateRequest, output, outDir string) error {
	created, err := c.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}

	stream, err := c.Open(ctx, created.TaskID)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer stream.Body.Close()

	path := output
	if path == "" {
		path = filepath.Join(outDir, filepath.Base(stream.Filename))
	}
	if err := checkSpace(filepath.Dir(path), stream.ContentLength); err != nil {
		c.Stop(context.Background(), created.TaskID)
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		c.Stop(context.Background(), created.TaskID)
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	counter := &countingWriter{w: f}
	done := make(chan struct{})
	go report(c, created.TaskID, counter, stream.ContentLength, done)

	_, copyErr := io.Copy(counter, stream.Body)
	close(done)

	if ctx.Err() != nil {
		c.Stop(context.Background(), created.TaskID)
		fmt.Fprintln(os.Stderr)
		return errors.New("interrupted")
	}
	if copyErr != nil {
		return fmt.Errorf("stream interrupted after %s: %w", humanize.IBytes(uint64(counter.n.Load())), copyErr)
	}

	fmt.Fprintf(os.Stderr, "\nsaved %s (%s)\n", path, humanize.IBytes(uint64(counter.n.Load())))
	return nil
}

// report renders progress until done is closed. On a terminal the line is
// redrawn in place, otherwise a line is printed every few seconds.
func report(c *client.Client, taskID string, counter *countingWriter, total int64, done <-chan struct{}) {
	tty := term.IsTerminal(int(os.Stderr.Fd()))
	interval := 500 * time.Millisecond
	if !tty {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		line := progressLine(counter.n.Load(), total)
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		if st, err := c.Status(ctx, taskID); err == nil {
			line += statusSuffix(st)
		}
		cancel()

		if tty {
			if width, _, err := term.GetSize(int(os.Stderr.Fd())); err == nil && width > 1 && len(line) >= width {
				line = line[:width-1]
			}
			fmt.Fprintf(os.Stderr, "\r\033[K%s", line)
		} else {
			fmt.Fprintln(os.Stderr, line)
		}
	}
}

func progressLine(written, total int64) string {
	if total > 0 {
		pct := float64(written) / float64(total) * 100
		return fmt.Sprintf("%5.1f%% %s / %s", pct, humanize.IBytes(uint64(written)), humanize.IBytes(uint64(total)))
	}
	return humanize.IBytes(uint64(written))
}

func statusSuffix(st *client.Status) string {
	var parts []string
	p := st.Progress
	if p.Speed != "" && p.Speed != "unknown" {
		parts = append(parts, p.Speed)
	}
	if p.ETA != "" && p.ETA != "unknown" {
		parts = append(parts, "ETA "+p.ETA)
	}
	if p.Time != "" && p.Time != "N/A" {
		parts = append(parts, "at "+p.Time)
	}
	if len(parts) == 0 {
		return ""
	}
	return " | " + strings.Join(parts, " ")
}

// checkSpace fails when the announced length does not fit in dir.
func checkSpace(dir string, need int64) error {
	if need <= 0 {
		return nil
	}
	if avail := freeSpace(dir); avail > 0 && avail < need {
		return fmt.Errorf("not enough disk space in %s: need %s, have %s",
			dir, humanize.IBytes(uint64(need)), humanize.IBytes(uint64(avail)))
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n atomic.Int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n.Add(int64(n))
	return n, err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
