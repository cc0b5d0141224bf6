// Package fclones drives the external fclones binary as an optional
// backend for content-hash duplicate detection.
package fclones

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Executor runs fclones commands
type Executor struct {
	binaryPath string
}

// NewExecutor creates a new fclones executor
func NewExecutor() *Executor {
	return &Executor{
		binaryPath: "fclones",
	}
}

// SetBinaryPath sets a custom path to the fclones binary
func (e *Executor) SetBinaryPath(path string) {
	e.binaryPath = path
}

// CheckInstalled verifies that fclones is installed and accessible
func (e *Executor) CheckInstalled(ctx context.Context) error {
	_, err := e.Version(ctx)
	return err
}

// Version returns the output of fclones --version
func (e *Executor) Version(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, e.binaryPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("fclones not found or not executable: %w", err)
	}
	v := strings.TrimSpace(string(output))
	if !strings.Contains(v, "fclones") {
		return "", fmt.Errorf("unexpected output from fclones --version: %s", v)
	}
	return v, nil
}

// Args builds the command line for a group run
func (opts ScanOptions) Args() []string {
	args := []string{"group", "--format", "json", "--progress", "true"}

	if opts.MinSize > 0 {
		args = append(args, "-s", strconv.FormatInt(opts.MinSize, 10))
	}
	if opts.MaxSize > 0 {
		args = append(args, "--max-size", strconv.FormatInt(opts.MaxSize, 10))
	}
	for _, pattern := range opts.NamePatterns {
		args = append(args, "--name", pattern)
	}
	for _, pattern := range opts.ExcludePatterns {
		args = append(args, "--exclude", pattern)
	}
	if opts.HashFunction != "" {
		args = append(args, "--hash-fn", opts.HashFunction)
	}
	if opts.NonRecursive {
		args = append(args, "--depth", "1")
	}
	if opts.HardLinks {
		args = append(args, "--hard-links")
	}
	if opts.UseCache {
		args = append(args, "--cache")
	}

	return append(args, opts.Paths...)
}

// Group runs fclones group and returns duplicate groups
func (e *Executor) Group(ctx context.Context, opts ScanOptions, onProgress func(Progress)) (*GroupOutput, error) {
	cmd := exec.CommandContext(ctx, e.binaryPath, opts.Args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start fclones: %w", err)
	}

	// fclones writes progress bars to stderr
	done := make(chan struct{})
	go func() {
		defer close(done)
		readProgress(stderr, onProgress)
	}()

	output, err := io.ReadAll(stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to read output: %w", err)
	}
	<-done

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fclones exited with error: %w", err)
	}

	var result GroupOutput
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("failed to parse fclones output: %w", err)
	}
	return &result, nil
}

func readProgress(r io.Reader, onProgress func(Progress)) {
	if onProgress == nil {
		_, _ = io.Copy(io.Discard, r)
		return
	}

	scanner := bufio.NewScanner(r)
	scanner.Split(scanTerminalLines)
	for scanner.Scan() {
		if p := parseProgressBar(scanner.Text()); p != nil {
			onProgress(*p)
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// scanTerminalLines splits on \n and on the \r progress bars redraw with
func scanTerminalLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var phaseHeader = regexp.MustCompile(`(\d+)/(\d+):\s+`)

// parseProgressBar parses the last progress bar on a line, or returns nil
func parseProgressBar(line string) *Progress {
	matches := phaseHeader.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return nil
	}
	m := matches[len(matches)-1]

	num, _ := strconv.Atoi(line[m[2]:m[3]])
	total, _ := strconv.Atoi(line[m[4]:m[5]])
	rest := line[m[1]:]

	open := strings.IndexByte(rest, '[')
	if open < 0 {
		return nil
	}
	p := &Progress{
		PhaseNum:   num,
		PhaseTotal: total,
		PhaseName:  strings.TrimSpace(rest[:open]),
		Percent:    -1,
	}
	p.Phase = phaseNameToPhase(p.PhaseName)

	counts := rest[open:]
	if end := strings.IndexByte(counts, ']'); end >= 0 {
		counts = counts[end+1:]
	}
	cur, tot, found := strings.Cut(counts, "/")
	p.Current = parseBytes(cur)
	p.Bytes = strings.ContainsAny(cur, "Bb")
	if found {
		p.Total = parseBytes(tot)
		if p.Total > 0 {
			p.Percent = float64(p.Current) / float64(p.Total) * 100
		}
	}
	return p
}

func phaseNameToPhase(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "scanning"):
		return "scanning"
	case strings.Contains(lower, "contents"):
		return "hashing"
	case strings.Contains(lower, "grouping"):
		return "grouping"
	case strings.Contains(lower, "initializing"):
		return "initializing"
	}
	return "processing"
}

// parseBytes reads counts like "12027", "630.5 MB" or "1 GiB". Anything
// unparseable is 0.
func parseBytes(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := humanize.ParseBytes(s)
	if err != nil || n > 1<<62 {
		return 0
	}
	return int64(n)
}
