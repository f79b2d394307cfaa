// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logging configures the shared logrus logger used by every tess component.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/util"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	setupOnce      sync.Once
	writerMu       sync.Mutex
	logWriter      *lumberjack.Logger
	ginInfoWriter  *io.PipeWriter
	ginErrorWriter *io.PipeWriter
)

// LogFormatter renders entries as a single line:
// [2026-10-14 20:14:04] [a1b2c3d4] [debug] [brain.go:120] provider openai failed | kind=rate_limited
type LogFormatter struct{}

// Format renders a single log entry.
func (m *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var buffer *bytes.Buffer
	if entry.Buffer != nil {
		buffer = entry.Buffer
	} else {
		buffer = &bytes.Buffer{}
	}

	timestamp := entry.Time.Format("2006-01-02 15:04:05")
	message := strings.TrimRight(entry.Message, "\r\n")

	reqID := "--------"
	if id, ok := entry.Data[RequestIDField].(string); ok && id != "" {
		reqID = id
	}

	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	if entry.Caller != nil {
		fmt.Fprintf(buffer, "[%s] [%s] [%-5s] [%s:%d] %s", timestamp, reqID, level, filepath.Base(entry.Caller.File), entry.Caller.Line, message)
	} else {
		fmt.Fprintf(buffer, "[%s] [%s] [%-5s] %s", timestamp, reqID, level, message)
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != RequestIDField {
			keys = append(keys, k)
		}
	}
	if len(keys) > 0 {
		// Stable field order keeps log lines diffable.
		sort.Strings(keys)
		buffer.WriteString(" |")
		for i, k := range keys {
			if i > 0 {
				buffer.WriteString(",")
			}
			fmt.Fprintf(buffer, " %s=%v", k, entry.Data[k])
		}
	}
	buffer.WriteString("\n")
	return buffer.Bytes(), nil
}

// SetupBaseLogger configures the shared logrus instance and routes Gin output through it.
// It is safe to call multiple times; initialization happens only once.
func SetupBaseLogger() {
	setupOnce.Do(func() {
		log.SetOutput(os.Stdout)
		log.SetReportCaller(true)
		log.SetFormatter(&LogFormatter{})

		ginInfoWriter = log.StandardLogger().Writer()
		gin.DefaultWriter = ginInfoWriter
		ginErrorWriter = log.StandardLogger().WriterLevel(log.ErrorLevel)
		gin.DefaultErrorWriter = ginErrorWriter
		gin.DebugPrintFunc = func(format string, values ...interface{}) {
			format = strings.TrimRight(format, "\r\n")
			log.StandardLogger().Debugf(format, values...)
		}

		log.RegisterExitHandler(closeLogOutputs)
	})
}

// SetLevel switches between debug and info verbosity.
func SetLevel(debug bool) {
	if debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	log.SetLevel(log.InfoLevel)
}

// ConfigureLogOutput switches the global log destination between a rotating file in logsDir
// and stdout. An empty logsDir falls back to ./logs.
func ConfigureLogOutput(loggingToFile bool, logsDir string) error {
	SetupBaseLogger()

	writerMu.Lock()
	defer writerMu.Unlock()

	if logsDir == "" {
		logsDir = "logs"
	}

	if !loggingToFile {
		if logWriter != nil {
			_ = logWriter.Close()
			logWriter = nil
		}
		log.SetOutput(os.Stdout)
		return nil
	}

	if err := util.EnsureDir(logsDir); err != nil {
		return fmt.Errorf("logging: failed to create log directory: %w", err)
	}
	if logWriter != nil {
		_ = logWriter.Close()
	}
	logWriter = &lumberjack.Logger{
		Filename:   filepath.Join(logsDir, "main.log"),
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   false,
	}
	log.SetOutput(logWriter)
	return nil
}

func closeLogOutputs() {
	writerMu.Lock()
	defer writerMu.Unlock()

	if logWriter != nil {
		_ = logWriter.Close()
		logWriter = nil
	}
	if ginInfoWriter != nil {
		_ = ginInfoWriter.Close()
		ginInfoWriter = nil
	}
	if ginErrorWriter != nil {
		_ = ginErrorWriter.Close()
		ginErrorWriter = nil
	}
}
