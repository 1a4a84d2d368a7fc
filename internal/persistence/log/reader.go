package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"lumbercamp.ai/internal/sim/world"
)

// ListFiles returns dir's <prefix>-*.jsonl.zst files in write order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool { return fileOrderKey(names[i]) < fileOrderKey(names[j]) })
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// fileOrderKey sorts "events-H.jsonl.zst" before "events-H.1.jsonl.zst".
func fileOrderKey(name string) string {
	base := strings.TrimSuffix(name, ".jsonl.zst")
	hour, seq, _ := strings.Cut(base, ".")
	n, _ := strconv.Atoi(seq)
	return fmt.Sprintf("%s.%08d", hour, n)
}

// EachLine calls fn with every line of a zstd JSONL file.
func EachLine(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// EachTick streams every tick entry under runDir/events in order.
func EachTick(runDir string, fn func(world.TickLogEntry) error) error {
	files, err := ListFiles(filepath.Join(runDir, "events"), "events")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no events files in %s", filepath.Join(runDir, "events"))
	}
	for _, path := range files {
		err := EachLine(path, func(line []byte) error {
			var entry world.TickLogEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
			}
			return fn(entry)
		})
		if err != nil {
			return err
		}
	}
	return nil
}
