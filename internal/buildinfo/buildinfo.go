package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Ces variables sont injectées à la compilation via -ldflags.
// Exemple :
//
//	-X github.com/Guilhem-Bonnet/Rolling-Window/internal/buildinfo.Version=v0.3.0
//	-X github.com/Guilhem-Bonnet/Rolling-Window/internal/buildinfo.Commit=abcdef
//	-X github.com/Guilhem-Bonnet/Rolling-Window/internal/buildinfo.Date=2026-10-17
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Current complète Commit/Date depuis les métadonnées VCS du binaire
// quand -ldflags ne les fournit pas (go install, go run).
func Current() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}
	if info.Commit != "" {
		return info
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			info.Commit = s.Value
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		}
	}
	return info
}
