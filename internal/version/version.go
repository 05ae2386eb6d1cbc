package version

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Значения подставляются при сборке через -ldflags "-X".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает хеш коммита.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}

// Fields - сведения о сборке для стартового лога.
func Fields() log.Fields {
	return log.Fields{"version": version, "commit": commit, "build_date": date}
}
