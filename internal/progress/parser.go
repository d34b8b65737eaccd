// Package progress turns subprocess stderr text into progress updates.
package progress

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

const extractorMarker = "[download]"

var (
	extractorPercentRe = regexp.MustCompile(`(\d+(?:\.\d+)?)%`)
	extractorTotalRe   = regexp.MustCompile(`of\s+~?\s*(\d+(?:\.\d+)?\s*[KMGTPE]?i?B)\b`)
	extractorSpeedRe   = regexp.MustCompile(`at\s+(\d+(?:\.\d+)?\s*[KMGTPE]?i?B/s)`)
	extractorETARe     = regexp.MustCompile(`ETA\s+(\d{1,2}(?::\d{2}){1,2})`)

	transcoderFrameRe   = regexp.MustCompile(`frame=\s*(\d+)`)
	transcoderFPSRe     = regexp.MustCompile(`fps=\s*(\d+(?:\.\d+)?)`)
	transcoderQRe       = regexp.MustCompile(`\bq=\s*(-?\d+(?:\.\d+)?)`)
	transcoderSizeRe    = regexp.MustCompile(`\bL?size=\s*(\S+)`)
	transcoderTimeRe    = regexp.MustCompile(`\btime=\s*(\S+)`)
	transcoderBitrateRe = regexp.MustCompile(`\bbitrate=\s*(\S+)`)
	transcoderSpeedRe   = regexp.MustCompile(`\bspeed=\s*(\S+)`)
)

// ParseExtractorLine parses one yt-dlp progress line such as
//
//	[download]  50.0% of ~100.00 MiB at  2.50 MiB/s ETA 00:00:20
//
// The percentage is required; size, speed and ETA fall back to domain.Unknown.
func ParseExtractorLine(line string) (domain.ProgressInfo, bool) {
	idx := strings.Index(line, extractorMarker)
	if idx < 0 {
		return domain.ProgressInfo{}, false
	}
	rest := line[idx+len(extractorMarker):]

	m := extractorPercentRe.FindStringSubmatch(rest)
	if m == nil {
		return domain.ProgressInfo{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct < 0 || pct > 100 {
		return domain.ProgressInfo{}, false
	}

	return domain.ProgressInfo{
		Source:    domain.SourceExtractor,
		Percent:   pct,
		TotalSize: submatch(extractorTotalRe, rest, domain.Unknown),
		Speed:     submatch(extractorSpeedRe, rest, domain.Unknown),
		ETA:       submatch(extractorETARe, rest, domain.Unknown),
	}, true
}

// ParseTranscoderLine parses one ffmpeg -stats line such as
//
//	frame= 1000 fps=30.0 q=28.0 Lsize= 5000kB time=00:00:33.33 bitrate=1234.5kbps speed=1.02x
//
// The frame count is required. Missing fps is 0, missing quality is
// domain.UnknownQuality and missing strings are domain.NotAvailable.
func ParseTranscoderLine(line string) (domain.ProgressInfo, bool) {
	m := transcoderFrameRe.FindStringSubmatch(line)
	if m == nil {
		return domain.ProgressInfo{}, false
	}
	frame, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return domain.ProgressInfo{}, false
	}

	info := domain.ProgressInfo{
		Source:  domain.SourceTranscoder,
		Frame:   frame,
		Quality: domain.UnknownQuality,
		Size:    submatch(transcoderSizeRe, line, domain.NotAvailable),
		Time:    submatch(transcoderTimeRe, line, domain.NotAvailable),
		Bitrate: submatch(transcoderBitrateRe, line, domain.NotAvailable),
		Speed:   submatch(transcoderSpeedRe, line, domain.NotAvailable),
	}
	if v, ok := parseFloat(transcoderFPSRe, line); ok {
		info.FPS = v
	}
	if v, ok := parseFloat(transcoderQRe, line); ok {
		info.Quality = v
	}
	return info, true
}

// IsProgressLine reports whether line would be recognized by either parser.
// Monitors use it to keep progress chatter out of the stderr tail.
func IsProgressLine(line string) bool {
	if _, ok := ParseExtractorLine(line); ok {
		return true
	}
	_, ok := ParseTranscoderLine(line)
	return ok
}

func submatch(re *regexp.Regexp, s, fallback string) string {
	m := re.FindStringSubmatch(s)
	if m == nil || m[1] == "" {
		return fallback
	}
	return m[1]
}

func parseFloat(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
