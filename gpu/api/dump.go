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

package api

import (
	"context"
	"fmt"
)

// NoCmdBufferIndex is the CmdBufferIdx of preamble and postamble streams.
const NoCmdBufferIndex = ^uint32(0)

// CmdBufferDumpDesc describes the origin of a dumped command stream.
type CmdBufferDumpDesc struct {
	EngineType    EngineType
	QueueType     QueueType
	SubEngineType SubEngineType
	CmdBufferIdx  uint32
	IsPreamble    bool
	IsPostamble   bool
}

// CmdBufferChunkDumpDesc is one chunk of a dumped command stream.
type CmdBufferChunkDumpDesc struct {
	ID       uint32
	Commands []uint32
	Size     uint32 // in bytes
}

// DumpSink receives the command streams of a submission.
type DumpSink interface {
	DumpCmdStream(ctx context.Context, desc CmdBufferDumpDesc, chunks []CmdBufferChunkDumpDesc) error
}

// DumpFile is a DumpSink that must be closed once the submission has been
// offered.
type DumpFile interface {
	DumpSink
	Close() error
}

// DumpFormat is the file format of submit-time command dumps.
type DumpFormat uint32

const (
	DumpFormatText DumpFormat = iota
	DumpFormatBinary
	DumpFormatBinaryHeaders
)

var dumpFormatNames = [...]string{"text", "binary", "binary-headers"}
var dumpFormatExts = [...]string{".txt", ".bin", ".pm4"}

func (f DumpFormat) String() string {
	if int(f) < len(dumpFormatNames) {
		return dumpFormatNames[f]
	}
	return fmt.Sprintf("DumpFormat(%d)", uint32(f))
}

// Ext returns the file extension used for the format.
func (f DumpFormat) Ext() string {
	if int(f) < len(dumpFormatExts) {
		return dumpFormatExts[f]
	}
	return ".dat"
}

// ParseDumpFormat returns the DumpFormat with the given name.
func ParseDumpFormat(s string) (DumpFormat, bool) {
	for i, n := range dumpFormatNames {
		if n == s {
			return DumpFormat(i), true
		}
	}
	return DumpFormatText, false
}

// DumpFileDesc identifies one submission's dump file.
type DumpFileDesc struct {
	QueueType   QueueType
	QueueID     uint64
	EngineIndex uint32
	Frame       uint32
	SubmitID    uint32 // per frame
	// ChunkCount is the total number of chunks that will be offered.
	ChunkCount uint32
}

// DumpFactory opens a DumpFile per submission.
type DumpFactory interface {
	Open(ctx context.Context, desc DumpFileDesc) (DumpFile, error)
}
