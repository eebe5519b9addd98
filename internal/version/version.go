// Package version хранит сведения о сборке.
//
// Значения задаются при сборке:
//
//	go build -ldflags "-X github.com/vladislavdragonenkov/basket/internal/version.version=v1.4.0 \
//	  -X github.com/vladislavdragonenkov/basket/internal/version.commit=$(git rev-parse HEAD)"
//
// Если commit не задан, берётся vcs.revision из debug.BuildInfo.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
)

const unknown = "unknown"

var (
	version = "dev"
	commit  = unknown
	date    = unknown
)

// Build описывает собранный бинарник.
type Build struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
}

// Get собирает сведения о сборке.
func Get() Build {
	b := Build{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if info, ok := debug.ReadBuildInfo(); ok {
		fillFromVCS(&b, info.Settings)
	}
	return b
}

func fillFromVCS(b *Build, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == unknown && s.Value != "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == unknown && s.Value != "" {
				b.Date = s.Value
			}
		}
	}
}

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

func (b Build) String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", b.Version, b.Commit, b.Date, b.GoVersion)
}

// Fields возвращает сведения о сборке для структурированного лога.
func Fields() log.Fields {
	b := Get()
	return log.Fields{
		"version":    b.Version,
		"commit":     b.Commit,
		"build_date": b.Date,
		"go":         b.GoVersion,
	}
}
