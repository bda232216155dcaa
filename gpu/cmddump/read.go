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

package cmddump

import (
	"encoding/binary"
	"io"

	"github.com/itrainl4/pal/gpu/api"
	"github.com/philhofer/fwd"
	"github.com/pkg/errors"
)

// BinaryChunk is one chunk read back from a binary dump.
type BinaryChunk struct {
	SubEngineID uint32
	Commands    []uint32
}

// BinaryDump is the content of a binary dump file.
type BinaryDump struct {
	FamilyID    uint32
	ERevID      uint32
	EngineIndex uint32
	ChunkCount  uint32
	// Chunks holds one entry per chunk for api.DumpFormatBinaryHeaders
	// files. Plain binary files carry no chunk boundaries, so every command
	// is returned in a single chunk.
	Chunks []BinaryChunk
}

// ReadBinary parses a dump file written in one of the binary formats.
func ReadBinary(r io.Reader, format api.DumpFormat) (*BinaryDump, error) {
	rd := fwd.NewReaderSize(r, bufferSize)
	d := &BinaryDump{}
	if format == api.DumpFormatBinaryHeaders {
		h, err := readWords(rd, 5)
		if err != nil {
			return nil, errors.Wrap(err, "Reading file header")
		}
		if h[0] != fileHeaderSize || h[1] != HeaderVersion {
			return nil, errors.Errorf("Unexpected file header size %d version %d", h[0], h[1])
		}
		d.FamilyID, d.ERevID = h[2], h[3]
	}
	l, err := readWords(rd, 3)
	if err != nil {
		return nil, errors.Wrap(err, "Reading list header")
	}
	if l[0] != listHeaderSize {
		return nil, errors.Errorf("Unexpected list header size %d", l[0])
	}
	d.EngineIndex, d.ChunkCount = l[1], l[2]

	if format != api.DumpFormatBinaryHeaders {
		rest, err := io.ReadAll(rd)
		if err != nil {
			return nil, errors.Wrap(err, "Reading commands")
		}
		cmds := make([]uint32, len(rest)/4)
		for i := range cmds {
			cmds[i] = binary.LittleEndian.Uint32(rest[i*4:])
		}
		d.Chunks = []BinaryChunk{{Commands: cmds}}
		return d, nil
	}

	for i := uint32(0); i < d.ChunkCount; i++ {
		h, err := readWords(rd, 3)
		if err != nil {
			return nil, errors.Wrapf(err, "Dump declares %d chunks, ends after %d", d.ChunkCount, i)
		}
		if h[0] != chunkHeaderSize {
			return nil, errors.Errorf("Unexpected chunk header size %d", h[0])
		}
		cmds, err := readWords(rd, int(h[1]/4))
		if err != nil {
			return nil, errors.Wrapf(err, "Reading chunk %d", i)
		}
		d.Chunks = append(d.Chunks, BinaryChunk{SubEngineID: h[2], Commands: cmds})
	}
	return d, nil
}

func readWords(rd *fwd.Reader, n int) ([]uint32, error) {
	out := make([]uint32, n)
	var buf [4]byte
	for i := range out {
		if _, err := rd.ReadFull(buf[:]); err != nil {
			return nil, err
		}
		out[i] = binary.LittleEndian.Uint32(buf[:])
	}
	return out, nil
}
