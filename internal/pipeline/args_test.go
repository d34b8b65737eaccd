package pipeline

import (
	"strings"
	"testing"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

func count(args []string, v string) int {
	n := 0
	for _, a := range args {
		if a == v {
			n++
		}
	}
	return n
}

func contains(args []string, v string) bool {
	return count(args, v) > 0
}

func TestBuildExtractorArgs_URLLastAndOnce(t *testing.T) {
	urls := []string{
		"https://example.com/video.mp4",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=10s",
		"https://example.com/a%20b?q=-f",
		"-f",
		"best",
	}
	formats := []string{"best", "audio", "720p", "bestvideo+bestaudio", ""}

	for _, url := range urls {
		for _, format := range formats {
			for _, audioOnly := range []bool{false, true} {
				args := BuildExtractorArgs(domain.Options{Format: format, AudioOnly: audioOnly}, url)
				if args[len(args)-1] != url {
					t.Errorf("last arg = %q, want %q", args[len(args)-1], url)
				}
				// The url may coincide with a flag value, so only inspect the tail.
				if args[len(args)-2] != "--" {
					t.Errorf("url not preceded by --: %q", args)
				}
				if url == "https://example.com/video.mp4" && count(args, url) != 1 {
					t.Errorf("url appears %d times", count(args, url))
				}
				for _, flag := range []string{"--newline", "-o", "-"} {
					if !contains(args, flag) {
						t.Errorf("missing %s in %q", flag, args)
					}
				}
			}
		}
	}
}

func TestBuildExtractorArgs_Formats(t *testing.T) {
	tests := []struct {
		name      string
		opts      domain.Options
		selector  string
		wantAudio bool
	}{
		{"best", domain.Options{Format: "best"}, "best", false},
		{"default", domain.Options{}, "best", false},
		{"audio", domain.Options{Format: "audio"}, "bestaudio[acodec=mp3]/bestaudio/best", false},
		{"audio extraction", domain.Options{Format: "audio", AudioOnly: true}, "bestaudio[acodec=mp3]/bestaudio/best", true},
		{"height cap", domain.Options{Format: "720p"}, "best[height<=720]/best", false},
		{"audioOnly with height", domain.Options{Format: "1080p", AudioOnly: true}, "best[height<=1080]/best", true},
		{"raw selector", domain.Options{Format: "bestvideo[ext=mp4]+bestaudio"}, "bestvideo[ext=mp4]+bestaudio", false},
		{"malformed", domain.Options{Format: "p720"}, "p720", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := BuildExtractorArgs(tt.opts, "https://example.com/v")
			i := indexOf(args, "-f")
			if i < 0 || i+1 >= len(args) {
				t.Fatalf("no -f selector in %q", args)
			}
			if args[i+1] != tt.selector {
				t.Errorf("selector = %q, want %q", args[i+1], tt.selector)
			}
			if got := contains(args, "-x"); got != tt.wantAudio {
				t.Errorf("audio extraction = %v, want %v", got, tt.wantAudio)
			}
			if tt.wantAudio {
				j := indexOf(args, "--audio-format")
				if j < 0 || args[j+1] != AudioCodec {
					t.Errorf("audio format missing or wrong in %q", args)
				}
			}
		})
	}
}

func TestFormatSelector_Resolution(t *testing.T) {
	if got := FormatSelector("720p"); !strings.Contains(got, "720") {
		t.Errorf("FormatSelector(720p) = %q, want it to contain 720", got)
	}
}

func TestBuildTranscoderArgs(t *testing.T) {
	video := BuildTranscoderArgs(domain.Options{Format: "best"})
	audio := BuildTranscoderArgs(domain.Options{Format: "audio", AudioOnly: true})

	for _, args := range [][]string{video, audio} {
		if i := indexOf(args, "-i"); i < 0 || args[i+1] != "pipe:0" {
			t.Errorf("input not stdin: %q", args)
		}
		if args[len(args)-1] != "pipe:1" {
			t.Errorf("output not stdout: %q", args)
		}
		if i := indexOf(args, "-c"); i < 0 || args[i+1] != "copy" {
			t.Errorf("stream copy missing: %q", args)
		}
		if !contains(args, "-stats") {
			t.Errorf("progress stats missing: %q", args)
		}
	}

	if i := indexOf(video, "-f"); video[i+1] != "mp4" {
		t.Errorf("video container = %q, want mp4", video[i+1])
	}
	if i := indexOf(audio, "-f"); audio[i+1] != "mp3" {
		t.Errorf("audio container = %q, want mp3", audio[i+1])
	}
	if !contains(audio, "-vn") {
		t.Error("audio output should drop video streams")
	}
}

func TestOutputContainer(t *testing.T) {
	c := OutputContainer(domain.Options{})
	if c.ContentType != "video/mp4" || c.Filename("str_1") != "str_1.mp4" {
		t.Errorf("video container = %+v", c)
	}
	c = OutputContainer(domain.Options{AudioOnly: true})
	if c.ContentType != "audio/mpeg" || c.Filename("str_1") != "str_1.mp3" {
		t.Errorf("audio container = %+v", c)
	}
}

func indexOf(args []string, v string) int {
	for i, a := range args {
		if a == v {
			return i
		}
	}
	return -1
}
