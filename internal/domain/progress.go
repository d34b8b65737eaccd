package domain

import (
	"github.com/dustin/go-humanize"
)

// ProgressSource names the subprocess that produced a progress update.
type ProgressSource string

const (
	SourceExtractor  ProgressSource = "extractor"
	SourceTranscoder ProgressSource = "transcoder"
	SourceBytes      ProgressSource = "bytes"
)

// Sentinels for fields a progress line did not carry.
const (
	Unknown        = "unknown"
	NotAvailable   = "N/A"
	UnknownQuality = -1.0
)

// ProgressInfo is one parsed progress line. Extractor lines fill Percent,
// TotalSize, Speed and ETA; transcoder lines fill Frame through Speed.
// Speed is the transfer rate for the extractor and the encode multiplier
// for the transcoder.
type ProgressInfo struct {
	Source ProgressSource

	Percent   float64
	TotalSize string
	ETA       string

	Frame   int64
	FPS     float64
	Quality float64
	Size    string
	Time    string
	Bitrate string

	Speed string
}

// Progress is the merged snapshot of everything both subprocesses and the
// output byte counter have reported for a session.
type Progress struct {
	Percent float64 `json:"percent"`
	Speed   string  `json:"speed"`
	ETA     string  `json:"eta"`
	Total   string  `json:"total"`

	Frame       int64   `json:"frame"`
	FPS         float64 `json:"fps"`
	Quality     float64 `json:"q"`
	Size        string  `json:"size"`
	Time        string  `json:"time"`
	Bitrate     string  `json:"bitrate"`
	EncodeSpeed string  `json:"encodeSpeed"`

	BytesTransferred int64 `json:"bytesTransferred"`
	FileSizeBytes    int64 `json:"fileSizeBytes"`

	Source ProgressSource `json:"source,omitempty"`
}

// NewProgress returns an empty snapshot. When fileSize is known the total is
// pre-filled and Percent is driven by the byte counter.
func NewProgress(fileSize int64) Progress {
	p := Progress{
		Speed:       Unknown,
		ETA:         Unknown,
		Total:       Unknown,
		Quality:     UnknownQuality,
		Size:        NotAvailable,
		Time:        NotAvailable,
		Bitrate:     NotAvailable,
		EncodeSpeed: NotAvailable,
	}
	if fileSize > 0 {
		p.FileSizeBytes = fileSize
		p.Total = humanize.IBytes(uint64(fileSize))
	}
	return p
}

// Merge applies info to the fields owned by its source and leaves the other
// source's fields untouched.
func (p Progress) Merge(info ProgressInfo) Progress {
	switch info.Source {
	case SourceExtractor:
		if p.FileSizeBytes <= 0 {
			p.Percent = info.Percent
		}
		p.Speed = info.Speed
		p.ETA = info.ETA
		if info.TotalSize != Unknown || p.FileSizeBytes <= 0 {
			p.Total = info.TotalSize
		}
	case SourceTranscoder:
		p.Frame = info.Frame
		p.FPS = info.FPS
		p.Quality = info.Quality
		p.Size = info.Size
		p.Time = info.Time
		p.Bitrate = info.Bitrate
		p.EncodeSpeed = info.Speed
	default:
		return p
	}
	p.Source = info.Source
	return p
}

// AddBytes advances the output byte counter. With a known file size it also
// recomputes Percent, capped at 100.
func (p Progress) AddBytes(n int64) Progress {
	if n <= 0 {
		return p
	}
	p.BytesTransferred += n
	if p.FileSizeBytes > 0 {
		pct := float64(p.BytesTransferred) / float64(p.FileSizeBytes) * 100
		if pct > 100 {
			pct = 100
		}
		p.Percent = pct
		p.Source = SourceBytes
	}
	return p
}
