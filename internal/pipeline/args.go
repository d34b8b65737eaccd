// Package pipeline builds the argument vectors for the extractor and
// transcoder processes of a stream session.
package pipeline

import (
	"regexp"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

// AudioCodec is the fixed lossy container requested for audio-only sessions.
const AudioCodec = "mp3"

// audioSelector prefers an mp3 source so the stream-copied mp3 output of
// audio-only sessions needs no re-encode.
const audioSelector = "bestaudio[acodec=mp3]/bestaudio/best"

var resolutionRe = regexp.MustCompile(`^(\d+)p$`)

// FormatSelector translates a session format into a yt-dlp -f selector.
// Unrecognized formats are passed through verbatim.
func FormatSelector(format string) string {
	switch format {
	case "", domain.FormatBest:
		return "best"
	case domain.FormatAudio:
		return audioSelector
	}
	if m := resolutionRe.FindStringSubmatch(format); m != nil {
		return "best[height<=" + m[1] + "]/best"
	}
	return format
}

// BuildExtractorArgs returns the yt-dlp argument vector. Progress is
// reported one update per line on stderr and media is written to stdout.
// url is always the final element and appears nowhere else.
func BuildExtractorArgs(opts domain.Options, url string) []string {
	args := []string{
		"--newline",
		"--progress",
		"--no-playlist",
		"--no-part",
		"--no-colors",
		"-f", FormatSelector(opts.Format),
	}
	if opts.AudioOnly {
		args = append(args, "-x", "--audio-format", AudioCodec)
	}
	return append(args, "-o", "-", "--", url)
}

// BuildTranscoderArgs returns the ffmpeg argument vector. Input is read
// from stdin and the remuxed container is written to stdout without
// re-encoding.
func BuildTranscoderArgs(opts domain.Options) []string {
	c := OutputContainer(opts)
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-stats",
		"-i", "pipe:0",
	}
	if opts.AudioOnly {
		args = append(args, "-vn")
	}
	args = append(args, "-c", "copy", "-f", c.Format)
	if !opts.AudioOnly {
		args = append(args, "-movflags", "frag_keyframe+empty_moov+default_base_moof")
	}
	return append(args, "pipe:1")
}

// Container describes the output produced by the transcoder.
type Container struct {
	Format      string
	Extension   string
	ContentType string
}

// OutputContainer returns the container for opts.
func OutputContainer(opts domain.Options) Container {
	if opts.AudioOnly {
		return Container{Format: "mp3", Extension: "mp3", ContentType: "audio/mpeg"}
	}
	return Container{Format: "mp4", Extension: "mp4", ContentType: "video/mp4"}
}

// Filename returns the attachment filename for a session's output.
func (c Container) Filename(id domain.TaskID) string {
	return id.String() + "." + c.Extension
}
