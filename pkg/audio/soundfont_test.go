package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindSoundFont(t *testing.T) {
	t.Run("explicit path wins", func(t *testing.T) {
		path, ok := FindSoundFont("/some/where/custom.sf2", "")
		if !ok || path != "/some/where/custom.sf2" {
			t.Errorf("got %q, %v", path, ok)
		}
	})

	t.Run("next to the MIDI file, any case", func(t *testing.T) {
		dir := t.TempDir()
		sf := filepath.Join(dir, "generaluser-gs.SF2")
		if err := os.WriteFile(sf, []byte("RIFF"), 0644); err != nil {
			t.Fatal(err)
		}
		path, ok := FindSoundFont("", filepath.Join(dir, "song.mid"))
		if !ok || path != sf {
			t.Errorf("got %q, %v; want %q", path, ok, sf)
		}
	})

	t.Run("empty file is ignored", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, DefaultSoundFontName), nil, 0644); err != nil {
			t.Fatal(err)
		}
		path, ok := FindSoundFont("", filepath.Join(dir, "song.mid"))
		if ok && filepath.Dir(path) == dir {
			t.Errorf("empty SoundFont should be skipped, got %q", path)
		}
	})
}
