package addrbook

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ReplaceRegion swaps the marker-delimited region of content for region,
// which must itself start with BeginMarker and end with EndMarker plus a
// newline. Text outside the markers is kept byte for byte. Empty content
// yields the region alone.
func ReplaceRegion(content, region []byte) ([]byte, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return append([]byte(nil), region...), nil
	}
	begin := bytes.Index(content, []byte(BeginMarker))
	if begin < 0 {
		return nil, fmt.Errorf("begin marker %q not found", BeginMarker)
	}
	rel := bytes.Index(content[begin:], []byte(EndMarker))
	if rel < 0 {
		return nil, fmt.Errorf("end marker %q not found after begin marker", EndMarker)
	}
	end := begin + rel + len(EndMarker)
	if end < len(content) && content[end] == '\n' {
		end++
	}
	if bytes.Contains(content[end:], []byte(BeginMarker)) {
		return nil, fmt.Errorf("more than one generated region")
	}

	out := make([]byte, 0, len(content)-(end-begin)+len(region))
	out = append(out, content[:begin]...)
	out = append(out, region...)
	out = append(out, content[end:]...)
	return out, nil
}

// UpdateFile regenerates the region in path and writes only when the result
// differs. It reports whether the file changed.
func UpdateFile(path string, region []byte) (bool, error) {
	current, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	next, err := ReplaceRegion(current, region)
	if err != nil {
		return false, fmt.Errorf("%s: %w", path, err)
	}
	if bytes.Equal(current, next) {
		return false, nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create output dir: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, next, 0o644); err != nil {
		return false, fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return false, fmt.Errorf("rename: %w", err)
	}
	return true, nil
}
