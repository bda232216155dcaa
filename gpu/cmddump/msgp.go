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
	"context"
	"io"
	"sync"

	"github.com/itrainl4/pal/gpu/api"
	"github.com/tinylib/msgp/msgp"
)

// Record is one dumped command stream.
type Record struct {
	Desc   api.CmdBufferDumpDesc
	Chunks []api.CmdBufferChunkDumpDesc
}

// EncodeMsg writes the record as a msgpack map.
func (z *Record) EncodeMsg(en *msgp.Writer) (err error) {
	if err = en.WriteMapHeader(7); err != nil {
		return
	}
	if err = en.WriteString("engine"); err != nil {
		return
	}
	if err = en.WriteUint32(uint32(z.Desc.EngineType)); err != nil {
		return
	}
	if err = en.WriteString("queue"); err != nil {
		return
	}
	if err = en.WriteUint32(uint32(z.Desc.QueueType)); err != nil {
		return
	}
	if err = en.WriteString("sub"); err != nil {
		return
	}
	if err = en.WriteUint32(uint32(z.Desc.SubEngineType)); err != nil {
		return
	}
	if err = en.WriteString("cmdbuf"); err != nil {
		return
	}
	if err = en.WriteUint32(z.Desc.CmdBufferIdx); err != nil {
		return
	}
	if err = en.WriteString("pre"); err != nil {
		return
	}
	if err = en.WriteBool(z.Desc.IsPreamble); err != nil {
		return
	}
	if err = en.WriteString("post"); err != nil {
		return
	}
	if err = en.WriteBool(z.Desc.IsPostamble); err != nil {
		return
	}
	if err = en.WriteString("chunks"); err != nil {
		return
	}
	if err = en.WriteArrayHeader(uint32(len(z.Chunks))); err != nil {
		return
	}
	for i := range z.Chunks {
		if err = encodeChunk(en, &z.Chunks[i]); err != nil {
			return
		}
	}
	return
}

func encodeChunk(en *msgp.Writer, c *api.CmdBufferChunkDumpDesc) (err error) {
	if err = en.WriteMapHeader(3); err != nil {
		return
	}
	if err = en.WriteString("id"); err != nil {
		return
	}
	if err = en.WriteUint32(c.ID); err != nil {
		return
	}
	if err = en.WriteString("size"); err != nil {
		return
	}
	if err = en.WriteUint32(c.Size); err != nil {
		return
	}
	if err = en.WriteString("cmds"); err != nil {
		return
	}
	if err = en.WriteArrayHeader(uint32(len(c.Commands))); err != nil {
		return
	}
	for _, v := range c.Commands {
		if err = en.WriteUint32(v); err != nil {
			return
		}
	}
	return
}

// DecodeMsg reads a record written by EncodeMsg. Unknown fields are skipped.
func (z *Record) DecodeMsg(dc *msgp.Reader) (err error) {
	var field []byte
	var sz uint32
	if sz, err = dc.ReadMapHeader(); err != nil {
		return
	}
	for i := uint32(0); i < sz; i++ {
		if field, err = dc.ReadMapKey(field); err != nil {
			return
		}
		var v uint32
		switch msgp.UnsafeString(field) {
		case "engine":
			v, err = dc.ReadUint32()
			z.Desc.EngineType = api.EngineType(v)
		case "queue":
			v, err = dc.ReadUint32()
			z.Desc.QueueType = api.QueueType(v)
		case "sub":
			v, err = dc.ReadUint32()
			z.Desc.SubEngineType = api.SubEngineType(v)
		case "cmdbuf":
			z.Desc.CmdBufferIdx, err = dc.ReadUint32()
		case "pre":
			z.Desc.IsPreamble, err = dc.ReadBool()
		case "post":
			z.Desc.IsPostamble, err = dc.ReadBool()
		case "chunks":
			var n uint32
			if n, err = dc.ReadArrayHeader(); err != nil {
				return
			}
			z.Chunks = make([]api.CmdBufferChunkDumpDesc, n)
			for j := range z.Chunks {
				if err = decodeChunk(dc, &z.Chunks[j]); err != nil {
					return
				}
			}
		default:
			err = dc.Skip()
		}
		if err != nil {
			return
		}
	}
	return
}

func decodeChunk(dc *msgp.Reader, c *api.CmdBufferChunkDumpDesc) (err error) {
	var field []byte
	var sz uint32
	if sz, err = dc.ReadMapHeader(); err != nil {
		return
	}
	for i := uint32(0); i < sz; i++ {
		if field, err = dc.ReadMapKey(field); err != nil {
			return
		}
		switch msgp.UnsafeString(field) {
		case "id":
			c.ID, err = dc.ReadUint32()
		case "size":
			c.Size, err = dc.ReadUint32()
		case "cmds":
			var n uint32
			if n, err = dc.ReadArrayHeader(); err != nil {
				return
			}
			c.Commands = make([]uint32, n)
			for j := range c.Commands {
				if c.Commands[j], err = dc.ReadUint32(); err != nil {
					return
				}
			}
		default:
			err = dc.Skip()
		}
		if err != nil {
			return
		}
	}
	return
}

// MsgpSink is an api.DumpSink writing one msgpack Record per stream.
// It is safe for concurrent use.
type MsgpSink struct {
	mutex sync.Mutex
	en    *msgp.Writer
}

var _ api.DumpSink = &MsgpSink{}

// NewMsgpSink returns a sink writing to w.
func NewMsgpSink(w io.Writer) *MsgpSink {
	return &MsgpSink{en: msgp.NewWriter(w)}
}

// DumpCmdStream implements api.DumpSink.
func (s *MsgpSink) DumpCmdStream(ctx context.Context, desc api.CmdBufferDumpDesc, chunks []api.CmdBufferChunkDumpDesc) error {
	r := Record{Desc: desc, Chunks: chunks}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if err := r.EncodeMsg(s.en); err != nil {
		return err
	}
	return s.en.Flush()
}

// Reader reads the Records written by a MsgpSink.
type Reader struct {
	dc *msgp.Reader
}

// NewReader returns a Reader reading from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{dc: msgp.NewReader(r)}
}

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (*Record, error) {
	rec := &Record{}
	if err := rec.DecodeMsg(r.dc); err != nil {
		return nil, err
	}
	return rec, nil
}

// ReadAll returns every record up to the end of the stream.
func (r *Reader) ReadAll() ([]*Record, error) {
	var out []*Record
	for {
		rec, err := r.Next()
		switch {
		case err == io.EOF:
			return out, nil
		case err != nil:
			return out, err
		}
		out = append(out, rec)
	}
}
