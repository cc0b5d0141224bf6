// Package ffprobe reads media metadata by running the ffprobe binary
package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Result is the subset of ffprobe output the scanners use
type Result struct {
	Duration   float64 // seconds
	BitRate    int64   // bits per second
	FormatName string
	Video      *Stream
	Audio      *Stream
}

// Stream describes the first video or audio stream
type Stream struct {
	Codec    string
	Width    int
	Height   int
	BitRate  int64
	Channels int
}

// Prober runs ffprobe
type Prober struct {
	binaryPath string
}

// New creates a prober using the ffprobe found on PATH
func New() *Prober {
	return &Prober{binaryPath: "ffprobe"}
}

// SetBinaryPath sets a custom path to the ffprobe binary
func (p *Prober) SetBinaryPath(path string) {
	p.binaryPath = path
}

// CheckInstalled verifies ffprobe can be executed
func (p *Prober) CheckInstalled(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, p.binaryPath, "-version").Output()
	if err != nil {
		return fmt.Errorf("ffprobe not found or not executable: %w", err)
	}
	if !strings.Contains(string(out), "ffprobe") {
		return fmt.Errorf("unexpected output from ffprobe -version: %s", firstLine(out))
	}
	return nil
}

// Probe reads format and stream information for one file
func (p *Prober) Probe(ctx context.Context, path string) (*Result, error) {
	cmd := exec.CommandContext(ctx, p.binaryPath,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// ParseJSON converts raw ffprobe JSON output into a Result
func ParseJSON(data []byte) (*Result, error) {
	var raw output
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	r := &Result{
		Duration:   parseFloat(raw.Format.Duration),
		BitRate:    parseInt64(raw.Format.BitRate),
		FormatName: raw.Format.FormatName,
	}
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if r.Video == nil && s.Disposition["attached_pic"] != 1 {
				r.Video = s.stream()
			}
		case "audio":
			if r.Audio == nil {
				r.Audio = s.stream()
			}
		}
	}
	if r.Duration == 0 && r.Format() == "" {
		return nil, fmt.Errorf("ffprobe returned no format information")
	}
	return r, nil
}

// Format returns the container format name
func (r *Result) Format() string {
	return r.FormatName
}

type output struct {
	Format  format   `json:"format"`
	Streams []stream `json:"streams"`
}

type format struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type stream struct {
	CodecName   string         `json:"codec_name"`
	CodecType   string         `json:"codec_type"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	BitRate     string         `json:"bit_rate"`
	Channels    int            `json:"channels"`
	Disposition map[string]int `json:"disposition"`
}

func (s *stream) stream() *Stream {
	return &Stream{
		Codec:    s.CodecName,
		Width:    s.Width,
		Height:   s.Height,
		BitRate:  parseInt64(s.BitRate),
		Channels: s.Channels,
	}
}

func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func firstLine(b []byte) string {
	s := string(b)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
