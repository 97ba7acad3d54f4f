package shadowauth

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// loadShadow parses a shadow(5) file into username to hash. Only the
// first two fields matter here; aging fields are ignored.
func loadShadow(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	entries := make(map[string]string)
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.SplitN(text, ":", 3)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: malformed shadow entry", path, line)
		}
		entries[fields[0]] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
