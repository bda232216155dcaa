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

// Package cmddump writes the command streams offered by a queue at submit
// time to files or msgpack record streams.
package cmddump

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/philhofer/fwd"
	"github.com/pkg/errors"
)

// HeaderVersion is the version written in the file header of
// api.DumpFormatBinaryHeaders files.
const HeaderVersion = 1

const (
	fileHeaderSize  = 20
	listHeaderSize  = 12
	chunkHeaderSize = 12
	bufferSize      = 4096
)

// Sub-engine identifiers written in chunk headers.
const (
	SubEngineIDPrimary    = 0
	SubEngineIDCE         = 1
	SubEngineIDCEPreamble = 2
	SubEngineIDDma        = 4
)

// FileFactory opens one dump file per submission in Dir.
type FileFactory struct {
	Dir    string
	Format api.DumpFormat
	// FamilyID and ERevID identify the ASIC in binary header files.
	FamilyID uint32
	ERevID   uint32
}

var _ api.DumpFactory = FileFactory{}

// FileName returns the name of the dump file for desc.
func (f FileFactory) FileName(desc api.DumpFileDesc) string {
	return fmt.Sprintf("Frame_%d_%d_%d_%04d%s",
		uint32(desc.QueueType), desc.QueueID, desc.Frame, desc.SubmitID, f.Format.Ext())
}

// Open implements api.DumpFactory.
func (f FileFactory) Open(ctx context.Context, desc api.DumpFileDesc) (api.DumpFile, error) {
	if f.Format > api.DumpFormatBinaryHeaders {
		return nil, errors.Errorf("Unsupported dump format %v", f.Format)
	}
	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return nil, errors.Wrap(err, "Creating dump directory")
	}
	path := filepath.Join(f.Dir, f.FileName(desc))
	out, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Opening dump file %s", path)
	}
	log.D(ctx, "Dumping submission to %s", path)

	file := &file{out: out, w: fwd.NewWriterSize(out, bufferSize), format: f.Format}
	switch f.Format {
	case api.DumpFormatBinaryHeaders:
		file.words(fileHeaderSize, HeaderVersion, f.FamilyID, f.ERevID, 0)
		fallthrough
	case api.DumpFormatBinary:
		file.words(listHeaderSize, desc.EngineIndex, desc.ChunkCount)
	}
	if file.err != nil {
		file.Close()
		return nil, errors.Wrapf(file.err, "Writing dump file %s", path)
	}
	return file, nil
}

type file struct {
	out     *os.File
	w       *fwd.Writer
	format  api.DumpFormat
	scratch [4]byte
	err     error
}

func (f *file) words(words ...uint32) {
	for _, v := range words {
		if f.err != nil {
			return
		}
		binary.LittleEndian.PutUint32(f.scratch[:], v)
		_, f.err = f.w.Write(f.scratch[:])
	}
}

func (f *file) printf(msg string, args ...interface{}) {
	if f.err == nil {
		_, f.err = fmt.Fprintf(f.w, msg, args...)
	}
}

// DumpCmdStream implements api.DumpSink.
func (f *file) DumpCmdStream(ctx context.Context, desc api.CmdBufferDumpDesc, chunks []api.CmdBufferChunkDumpDesc) error {
	if f.format == api.DumpFormatText {
		dwords := 0
		for _, c := range chunks {
			dwords += int(c.Size / 4)
		}
		f.printf("%s Command length = %d\n", StreamTitle(desc), dwords)
	}
	sub := SubEngineID(desc)
	for _, c := range chunks {
		cmds := c.Commands
		if n := int(c.Size / 4); n < len(cmds) {
			cmds = cmds[:n]
		}
		switch f.format {
		case api.DumpFormatText:
			for _, v := range cmds {
				f.printf("0x%08x\n", v)
			}
		case api.DumpFormatBinaryHeaders:
			f.words(chunkHeaderSize, c.Size, sub)
			fallthrough
		default:
			f.words(cmds...)
		}
	}
	return f.err
}

// Close flushes and closes the file.
func (f *file) Close() error {
	err := f.err
	if ferr := f.w.Flush(); err == nil {
		err = ferr
	}
	if cerr := f.out.Close(); err == nil {
		err = cerr
	}
	return err
}

// StreamTitle returns the text-format header prefix for a stream.
func StreamTitle(desc api.CmdBufferDumpDesc) string {
	if desc.IsPreamble || desc.IsPostamble {
		if desc.QueueType == api.QueueTypeTimer {
			return ""
		}
		return fmt.Sprintf("# %v Queue - QueueContext", queueName(api.EngineType(desc.QueueType)))
	}
	suffix := ""
	if desc.EngineType == api.EngineTypeUniversal {
		suffix = " DE"
		if desc.SubEngineType != api.SubEnginePrimary {
			suffix = " CE"
		}
	}
	if desc.EngineType >= api.EngineTypeTimer {
		return suffix
	}
	return fmt.Sprintf("# %v Queue -%s", queueName(desc.EngineType), suffix)
}

func queueName(t api.EngineType) string {
	if t == api.EngineTypeDma {
		return "DMA"
	}
	return t.String()
}

// SubEngineID returns the sub-engine identifier written in chunk headers.
func SubEngineID(desc api.CmdBufferDumpDesc) uint32 {
	switch {
	case desc.SubEngineType == api.SubEngineConstantEngine && desc.IsPreamble:
		return SubEngineIDCEPreamble
	case desc.SubEngineType == api.SubEngineConstantEngine:
		return SubEngineIDCE
	case desc.EngineType == api.EngineTypeDma:
		return SubEngineIDDma
	default:
		return SubEngineIDPrimary
	}
}
