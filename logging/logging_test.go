package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterKeepsNumberedBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.log")

	rw, err := NewRotatingWriter(path, 64, 2)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer rw.Close()

	line := bytes.Repeat([]byte("x"), 40)
	for i := 0; i < 6; i++ {
		if _, err := rw.Write(append(line, '\n')); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	got := strings.Join(names, ",")

	for _, want := range []string{"harvester.log", "harvester.log.1", "harvester.log.2"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing %s, have %s", want, got)
		}
	}
	if len(names) != 3 {
		t.Fatalf("backups past the limit must be dropped, have %s", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat current log: %v", err)
	}
	if info.Size() > 64 {
		t.Fatalf("current log not rotated: %d bytes", info.Size())
	}
}

func TestRotatingWriterRotatesOversizedExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "harvester.log")

	if err := os.WriteFile(path, bytes.Repeat([]byte("old\n"), 40), 0644); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	rw, err := NewRotatingWriter(path, 64, 1)
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	defer rw.Close()

	if _, err := rw.Write([]byte("new entry\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	backup, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("expected the oversized file to rotate into a backup: %v", err)
	}
	if !bytes.Contains(backup, []byte("old")) {
		t.Fatalf("backup lost the previous contents")
	}
	if !bytes.Contains(backup, []byte("new entry")) {
		t.Fatalf("the triggering write belongs to the rotated file")
	}
}
