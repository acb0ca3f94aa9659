package main

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// readInput reads a file, or stdin for "-"
func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == InputSourceStdin {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// writeOutput writes to a file, or stdout for "-"
func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == FlagDefaultOutput {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, FilePermissions)
}

// modTime returns the file's modification time; zero for stdin
func modTime(path string) time.Time {
	if path == InputSourceStdin {
		return time.Time{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// templateName derives a template name from a file path
func templateName(path string) string {
	if path == InputSourceStdin {
		return "stdin"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// splitNamed parses "name=path", defaulting the name to the file name
func splitNamed(value string) (name, path string) {
	if n, p, ok := strings.Cut(value, NamedFileSeparator); ok && n != "" {
		return n, p
	}
	return templateName(value), value
}

// loadJSON decodes an inline JSON string or a JSON file. Both empty yields
// nil.
func loadJSON(inline, file string) (map[string]any, error) {
	var data []byte
	switch {
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		data = b
	case inline != "":
		data = []byte(inline)
	default:
		return nil, nil
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
