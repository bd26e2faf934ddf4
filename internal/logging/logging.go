/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/friendsincode/invernadero/internal/logbuffer"
)

// Setup configures zerolog for the process, writing to stderr so CLI output
// on stdout stays clean.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stderr)
}

// SetupWithBuffer is Setup plus a copy of every entry kept in buf, which
// always receives JSON regardless of the console format.
func SetupWithBuffer(environment string, buf *logbuffer.Buffer) zerolog.Logger {
	return setup(environment, os.Stderr, logbuffer.NewWriter(buf))
}

// SetupWithWriter configures zerolog on w. Development gets a console writer
// at debug level, everything else JSON at info.
func SetupWithWriter(environment string, w io.Writer) zerolog.Logger {
	return setup(environment, w, nil)
}

func setup(environment string, w io.Writer, capture io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	out := w
	if environment == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: w}
	}
	if capture != nil {
		out = zerolog.MultiLevelWriter(out, capture)
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
