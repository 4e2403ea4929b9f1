package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("test"), 0644); err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
	}
}

func TestFindFileCaseInsensitive(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, "Song.MID", "lowercase.sf2")
	if err := os.Mkdir(filepath.Join(tmpDir, "Folder.mid"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	tests := []struct {
		name          string
		searchName    string
		shouldFind    bool
		expectedMatch string
	}{
		{"exact match", "Song.MID", true, "Song.MID"},
		{"lowercase search", "song.mid", true, "Song.MID"},
		{"uppercase search", "LOWERCASE.SF2", true, "lowercase.sf2"},
		{"directories are skipped", "folder.mid", false, ""},
		{"missing file", "other.mid", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindFileCaseInsensitive(tmpDir, tt.searchName)
			if !tt.shouldFind {
				if err == nil {
					t.Errorf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if filepath.Base(got) != tt.expectedMatch {
				t.Errorf("expected %s, got %s", tt.expectedMatch, filepath.Base(got))
			}
		})
	}

	t.Run("missing directory", func(t *testing.T) {
		if _, err := FindFileCaseInsensitive(filepath.Join(tmpDir, "nope"), "a"); err == nil {
			t.Error("expected error for missing directory")
		}
	})
}

func TestResolve(t *testing.T) {
	tmpDir := t.TempDir()
	writeFiles(t, tmpDir, "Tune.mid")

	t.Run("exact path", func(t *testing.T) {
		p := filepath.Join(tmpDir, "Tune.mid")
		got, err := Resolve(p)
		if err != nil || got != p {
			t.Errorf("Resolve(%s) = %s, %v", p, got, err)
		}
	})

	t.Run("case-insensitive fallback", func(t *testing.T) {
		got, err := Resolve(filepath.Join(tmpDir, "TUNE.MID"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Base(got) != "Tune.mid" {
			t.Errorf("expected Tune.mid, got %s", got)
		}
	})

	t.Run("not found", func(t *testing.T) {
		_, err := Resolve(filepath.Join(tmpDir, "missing.mid"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("directory is not a file", func(t *testing.T) {
		_, err := Resolve(tmpDir)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Resolve(""); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFindFirst(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeFiles(t, second, "GeneralUser-GS.sf2")

	got, ok := FindFirst("generaluser-gs.sf2", "", first, second)
	if !ok {
		t.Fatal("expected to find file in second directory")
	}
	if filepath.Dir(got) != second {
		t.Errorf("expected match in %s, got %s", second, got)
	}

	if _, ok := FindFirst("missing.sf2", first, second); ok {
		t.Error("expected no match")
	}
}
