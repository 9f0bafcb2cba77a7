package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger *logrus.Logger
	once   sync.Once
)

//JobIDKey is the context key holding the id of the running processing job
const JobIDKey = "job_id"

type Fields = logrus.Fields

//NewLogger returns the process-wide logger, building it on first use.
//Logs go to stderr and, unless APP_ENV=test, to a daily rotated file under logDir.
func NewLogger(logDir string) *logrus.Logger {
	once.Do(func() {
		logger = logrus.New()
		logger.SetLevel(logrus.DebugLevel)

		logger.SetFormatter(&formatter.Formatter{
			NoColors:        false,
			TimestampFormat: "02 Jan 06 - 15:04:05",
			HideKeys:        false,
			CallerFirst:     true,
			CustomCallerFormatter: func(f *runtime.Frame) string {
				s := strings.Split(f.Function, ".")
				funcName := s[len(s)-1]
				return fmt.Sprintf(" \x1b[%dm[%s:%d][%s()]", 34, path.Base(f.File), f.Line, funcName)
			},
		})

		writers := []io.Writer{os.Stderr}

		if os.Getenv("APP_ENV") != "test" && logDir != "" {
			writers = append(writers, &lumberjack.Logger{
				Filename:   path.Join(logDir, fmt.Sprintf("minimap-%s.log", time.Now().Format("2006-01-02"))),
				LocalTime:  true,
				Compress:   true,
				MaxSize:    100,
				MaxAge:     7,
				MaxBackups: 3,
			})
		}

		logger.SetOutput(io.MultiWriter(writers...))
		logger.SetReportCaller(true)
	})

	return logger
}

//Discard returns a logger that drops everything, used by tests and optional components
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

//WithJob returns an entry tagged with the job id stored in ctx
func WithJob(l logrus.FieldLogger, ctx context.Context) logrus.FieldLogger {
	jobID := "unknown"
	if ctx != nil {
		if id, ok := ctx.Value(JobIDKey).(string); ok && id != "" {
			jobID = id
		}
	}

	return l.WithField(JobIDKey, jobID)
}
