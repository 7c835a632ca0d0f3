package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	base *zap.Logger
	once sync.Once

	serviceName = "default"
)

func SetServiceName(newName string) string {
	oldName := serviceName
	serviceName = newName

	return oldName
}

// Init создаёт общий zap-логгер. Повторные вызовы — no-op.
func Init() {
	once.Do(func() {
		l, err := zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			panic(err)
		}
		base = l
	})
}

func log() *zap.Logger {
	if base == nil {
		Init()
	}
	return base.With(zap.String("service", serviceName))
}

func Info(format string, args ...interface{}) {
	log().Info(fmt.Sprintf(format, args...))
}

func Warn(format string, args ...interface{}) {
	log().Warn(fmt.Sprintf(format, args...))
}

func Error(format string, args ...interface{}) {
	log().Error(fmt.Sprintf(format, args...))
}

func Fatal(format string, args ...interface{}) {
	log().Fatal(fmt.Sprintf(format, args...))
}
