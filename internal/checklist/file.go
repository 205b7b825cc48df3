package checklist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// fileLocks serializes mutations per checklist path so concurrent writers
// never interleave a read-modify-write on the same artifact.
var fileLocks sync.Map // path -> *sync.Mutex

func lockFor(path string) *sync.Mutex {
	mu, _ := fileLocks.LoadOrStore(filepath.Clean(path), &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ReadFile returns the checklist text at path.
//
// A missing file is treated as an empty checklist, never an error: absent
// progress is the conservative default for readers deciding whether a
// phase is complete.
func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading checklist %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile atomically replaces the checklist at path with text.
//
// The write goes to a temporary file in the same directory followed by a
// rename, so readers never observe a partially written checklist.
func WriteFile(path, text string) error {
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()
	return writeAtomic(path, text)
}

// MarkComplete checks the given 1-based line numbers in the checklist at
// path. Line numbers that do not refer to an unchecked task bullet are
// ignored. Returns the number of lines actually flipped.
func MarkComplete(path string, lines []int) (int, error) {
	if len(lines) == 0 {
		return 0, nil
	}

	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading checklist %s: %w", path, err)
	}

	wanted := make(map[int]bool, len(lines))
	for _, n := range lines {
		wanted[n] = true
	}

	text := string(data)
	rows := strings.Split(text, "\n")
	flipped := 0
	for i, row := range rows {
		if !wanted[i+1] {
			continue
		}
		item, ok := parseLine(row)
		if !ok || item.Completed {
			continue
		}
		rows[i] = checkLine(row)
		flipped++
	}

	if flipped == 0 {
		return 0, nil
	}

	if err := writeAtomic(path, strings.Join(rows, "\n")); err != nil {
		return 0, err
	}
	return flipped, nil
}

// checkLine flips the completion marker of a known-valid task line,
// preserving indentation and bullet style.
func checkLine(line string) string {
	idx := strings.Index(line, "[ ]")
	if idx < 0 {
		return line
	}
	return line[:idx] + "[x]" + line[idx+len("[ ]"):]
}

func writeAtomic(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating checklist directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o600); err != nil {
		return fmt.Errorf("writing checklist %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming checklist %s: %w", path, err)
	}
	return nil
}
