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

// The qsim command runs queue submission scenarios against simulated
// hardware and decodes the command dumps they produce.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/itrainl4/pal/core/app"
	"github.com/itrainl4/pal/core/event/task"
	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/cmddump"
	"github.com/itrainl4/pal/gpu/config"
	"github.com/itrainl4/pal/gpu/scenario"
)

var (
	records = flag.String("records", "", "write a MessagePack record of every submitted command stream to this file")
	decode  = flag.Bool("decode", false, "treat the arguments as command dumps (.bin, .pm4 or .msgp) and summarise them")
	verbose = flag.Bool("events", false, "print every operation that reached the simulated hardware")
)

func main() {
	app.ShortHelp = "qsim runs queue submission scenarios against simulated hardware"
	app.Name = "qsim"
	app.ShortUsage = "<scenario.yaml>..."
	app.Run(run)
}

func run(ctx context.Context) error {
	args := flag.Args()
	if len(args) == 0 {
		return app.ErrUsage
	}
	if *decode {
		for _, path := range args {
			if err := decodeDump(ctx, path, os.Stdout); err != nil {
				return err
			}
		}
		return nil
	}
	var sink *cmddump.MsgpSink
	closeRecords := task.Task(func(context.Context) error { return nil })
	if *records != "" {
		f, err := os.Create(*records)
		if err != nil {
			return errors.Wrap(err, "Creating records file")
		}
		closeRecords = task.Once(func(context.Context) error { return f.Close() })
		defer closeRecords(ctx)
		sink = cmddump.NewMsgpSink(f)
	}
	for _, path := range args {
		if err := runScenario(ctx, path, sink); err != nil {
			return err
		}
	}
	return errors.Wrap(closeRecords(ctx), "Closing records file")
}

func runScenario(ctx context.Context, path string, sink *cmddump.MsgpSink) error {
	ctx = log.Enter(ctx, filepath.Base(path))
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	r, err := scenario.New(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, path)
	}
	if sink != nil {
		r.Sink = sink
	}
	report, runErr := r.Run(ctx)
	closeErr := r.Close(ctx)
	fmt.Printf("%s: %v\n", path, report)
	if *verbose {
		for i, e := range report.Events {
			fmt.Printf("  %3d %s\n", i, e)
		}
	}
	if runErr != nil {
		return errors.Wrap(runErr, path)
	}
	return errors.Wrap(closeErr, path)
}

func decodeDump(ctx context.Context, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "Opening dump")
	}
	defer f.Close()

	switch filepath.Ext(path) {
	case ".msgp":
		recs, err := cmddump.NewReader(f).ReadAll()
		if err != nil {
			return errors.Wrap(err, path)
		}
		fmt.Fprintf(out, "%s: %d streams\n", path, len(recs))
		for _, rec := range recs {
			n := 0
			for _, c := range rec.Chunks {
				n += len(c.Commands)
			}
			fmt.Fprintf(out, "  %s: %d chunks, %d dwords\n", cmddump.StreamTitle(rec.Desc), len(rec.Chunks), n)
		}
		return nil
	case api.DumpFormatBinary.Ext(), api.DumpFormatBinaryHeaders.Ext():
		format := api.DumpFormatBinary
		if filepath.Ext(path) == api.DumpFormatBinaryHeaders.Ext() {
			format = api.DumpFormatBinaryHeaders
		}
		dump, err := cmddump.ReadBinary(f, format)
		if err != nil {
			return errors.Wrap(err, path)
		}
		fmt.Fprintf(out, "%s: family %d, erev %d, engine %d, %d chunks\n",
			path, dump.FamilyID, dump.ERevID, dump.EngineIndex, len(dump.Chunks))
		for i, c := range dump.Chunks {
			fmt.Fprintf(out, "  %3d sub-engine %d: %d dwords\n", i, c.SubEngineID, len(c.Commands))
		}
		return nil
	default:
		log.W(ctx, "Skipping %s: unknown dump format", path)
		return nil
	}
}
