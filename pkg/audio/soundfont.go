package audio

import (
	"os"
	"path/filepath"

	"github.com/zurustar/notefall/pkg/fileutil"
)

// DefaultSoundFontName is the SoundFont filename searched for when none is
// configured.
const DefaultSoundFontName = "GeneralUser-GS.sf2"

// FindSoundFont returns the SoundFont to use, in this order:
//  1. explicit, when set (returned even if missing, so loading reports it)
//  2. DefaultSoundFontName next to the MIDI file
//  3. DefaultSoundFontName in the current directory
//  4. DefaultSoundFontName in ./soundfonts
//
// The second result is false when nothing was found.
func FindSoundFont(explicit, midiPath string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}

	var dirs []string
	if midiPath != "" {
		dirs = append(dirs, filepath.Dir(midiPath))
	}
	dirs = append(dirs, ".", "soundfonts")

	for _, dir := range dirs {
		if path, ok := fileutil.FindFirst(DefaultSoundFontName, dir); ok {
			if info, err := os.Stat(path); err == nil && info.Size() > 0 {
				return path, true
			}
		}
	}
	return "", false
}
