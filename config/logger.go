package config

import (
	"sync"

	"github.com/MonkyMars/gecho"
)

var (
	logger     *gecho.Logger
	loggerOnce sync.Once
)

// InitializeLogger builds the process-wide logger at the environment's log level
func InitializeLogger() *gecho.Logger {
	loggerOnce.Do(func() {
		level := gecho.ParseLogLevel(GetLogLevel())
		logger = gecho.NewLogger(gecho.NewConfig(gecho.WithShowCaller(true), gecho.WithLogLevel(level)))
	})
	return logger
}

func GetLogger() *gecho.Logger {
	return InitializeLogger()
}
