package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// save writes dir/stem.txt with writeText and, when enabled, dir/stem.json
// with the JSON encoding of results.
func (c *Common) save(dir, stem string, writeText func(w io.Writer) error, results any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	err := writeFileAtomic(filepath.Join(dir, stem+".txt"), func(w io.Writer) error {
		if err := c.writeHeader(w); err != nil {
			return err
		}
		return writeText(w)
	})
	if err != nil {
		return err
	}

	if !c.saveJSON {
		return nil
	}
	return writeFileAtomic(filepath.Join(dir, stem+".json"), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	})
}

func (c *Common) writeHeader(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Results of searching %s with excluded directories %s and excluded items %s\n",
		quoteList(c.included), quoteList(c.excludedDirs), quoteList(c.itemPatterns))
	return err
}

func quoteList(items []string) string {
	q := make([]string, len(items))
	for i, s := range items {
		q[i] = fmt.Sprintf("%q", s)
	}
	return "[" + strings.Join(q, ", ") + "]"
}

// writeFileAtomic writes through a temp file in the same directory and
// renames it into place.
func writeFileAtomic(path string, fill func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	buf := bufio.NewWriter(tmp)
	if err := fill(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
