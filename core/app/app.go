// Copyright (C) 2020 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package app provides the process entry point for command line tools.
package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/itrainl4/pal/core/app/crash"
	"github.com/itrainl4/pal/core/event/task"
	"github.com/itrainl4/pal/core/fault"
	"github.com/itrainl4/pal/core/log"
)

const logChanBufferSize = 100

var (
	// Name is the full name of the application
	Name = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))
	// ExitFuncForTesting can be set to change the behaviour when there is a command line parsing failure.
	// It defaults to os.Exit
	ExitFuncForTesting = os.Exit
	// ShortHelp should be set to add a help message to the usage text.
	ShortHelp = ""
	// ShortUsage is usage text for the additional non-flag arguments.
	ShortUsage = ""
)

// ExitCode is the type for named return values from the application main entry point.
type ExitCode int

const (
	// SuccessExit is the exit code for successful termination.
	SuccessExit = ExitCode(0)
	// FatalExit is the exit code if something logs at a fatal severity (critical or higher by default)
	FatalExit = ExitCode(1)
	// UsageExit is the exit code if the command line arguments were invalid.
	UsageExit = ExitCode(2)
)

// ErrUsage is returned by a main task when its arguments were invalid.
const ErrUsage = fault.Const("Invalid usage")

// LogFlags holds the logging flags common to all applications.
type LogFlags struct {
	Level string
	Style string
}

// Bind installs the logging flags into set.
func (f *LogFlags) Bind(set *flag.FlagSet) {
	set.StringVar(&f.Level, "log-level", log.Info.String(), "the minimum severity to log (Verbose, Debug, Info, Warning, Error, Fatal)")
	set.StringVar(&f.Style, "log-style", log.Normal.Name, "the log style (raw, brief, normal, detailed)")
}

// Context builds the root logging context described by the flags.
func (f *LogFlags) Context(ctx context.Context, w log.Writer) (context.Context, log.Handler, error) {
	level, ok := log.SeverityByName(f.Level)
	if !ok {
		return nil, nil, fmt.Errorf("unknown log level %q", f.Level)
	}
	style, ok := log.StyleByName(f.Style)
	if !ok {
		return nil, nil, fmt.Errorf("unknown log style %q", f.Style)
	}
	handler := wrapHandler(style.Handler(w))
	ctx = log.PutHandler(ctx, handler)
	ctx = log.PutFilter(ctx, log.SeverityFilter(level))
	ctx = log.PutTag(ctx, Name)
	return ctx, handler, nil
}

func wrapHandler(to log.Handler) log.Handler {
	to = log.Channel(to, logChanBufferSize)
	return log.NewHandler(func(m *log.Message) {
		to.Handle(m)
		if m.StopProcess {
			to.Close()
			panic(FatalExit)
		}
	}, to.Close)
}

// Usage prints the usage text for the application to stderr.
func Usage(set *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] %s\n", Name, ShortUsage)
	if ShortHelp != "" {
		fmt.Fprintln(os.Stderr, ShortHelp)
	}
	set.PrintDefaults()
}

// Run performs all the work needed to start up an application.
// It parses the command line, builds a primary context that is cancelled on
// exit and runs main with it. Flags registered on flag.CommandLine before Run
// is called are parsed along with the logging flags.
func Run(main task.Task) {
	crash.Register(func(e interface{}, stack []byte) {
		fmt.Fprintf(os.Stderr, "%s crashed: %v\n%s", Name, e, stack)
	})

	defer func() {
		switch cause := recover().(type) {
		case nil:
		case ExitCode:
			ExitFuncForTesting(int(cause))
		default:
			crash.Crash(cause)
		}
	}()

	flags := &LogFlags{}
	flags.Bind(flag.CommandLine)
	flag.CommandLine.Usage = func() { Usage(flag.CommandLine) }
	flag.Parse()

	rootCtx, handler, err := flags.Context(context.Background(), log.Std())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		Usage(flag.CommandLine)
		panic(UsageExit)
	}
	ctx, cancel := task.WithCancel(rootCtx)
	defer func() {
		cancel()
		handler.Close()
	}()

	err = main(ctx)
	switch {
	case err == nil:
	case err == ErrUsage:
		Usage(flag.CommandLine)
		panic(UsageExit)
	default:
		log.F(ctx, true, "Main failed\nError: %v", err)
	}
}
