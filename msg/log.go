package msg

import (
	"os"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("blemsg")

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} blemsg ▶ %{message}%{color:reset}`,
)

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, stderrFormat)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(levelFromEnv(), "")
	logging.SetBackend(leveled)
}

func levelFromEnv() logging.Level {
	switch os.Getenv("BLEMSG_LOG_LEVEL") {
	case "CRITICAL":
		return logging.CRITICAL
	case "ERROR":
		return logging.ERROR
	case "WARNING":
		return logging.WARNING
	case "NOTICE":
		return logging.NOTICE
	case "DEBUG":
		return logging.DEBUG
	default:
		return logging.INFO
	}
}
