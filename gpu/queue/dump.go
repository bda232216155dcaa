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

package queue

import (
	"context"

	"github.com/itrainl4/pal/core/log"
	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/device"
)

// IsCmdDumpEnabled returns true if submissions of the current frame are
// dumped at submit time.
func (q *Queue) IsCmdDumpEnabled() bool {
	s := &q.dev.Settings
	if q.dump == nil || s.CmdBufDumpMode != device.DumpModeSubmitTime {
		return false
	}
	frame := q.dev.FrameCount()
	return q.dev.IsCmdBufDumpEnabled() ||
		(frame >= s.SubmitTimeCmdBufDumpStartFrame && frame <= s.SubmitTimeCmdBufDumpEndFrame)
}

// dumpSubmission offers the command streams of sub-queue 0 to the dump file
// of the current frame and to the request's own sink. Failures are logged.
func (q *Queue) dumpSubmission(ctx context.Context, info *api.MultiSubmitInfo, internal *api.InternalSubmitInfo) {
	if info.PerSubQueueInfoCount == 0 {
		return
	}
	if q.IsCmdDumpEnabled() {
		desc := api.DumpFileDesc{
			QueueType:   q.QueueType(),
			QueueID:     q.id,
			EngineIndex: q.infos[0].CreateInfo.EngineIndex,
			Frame:       q.dev.FrameCount(),
			SubmitID:    q.nextSubmitID(),
			ChunkCount:  countChunks(info, internal),
		}
		if f, err := q.dump.Open(ctx, desc); err != nil {
			log.W(ctx, "Command dump of frame %d failed: %v", desc.Frame, err)
		} else {
			if err := q.dumpStreams(ctx, f, info, internal); err != nil {
				log.W(ctx, "Command dump of frame %d is incomplete: %v", desc.Frame, err)
			}
			if err := f.Close(); err != nil {
				log.W(ctx, "Closing command dump of frame %d: %v", desc.Frame, err)
			}
		}
	}
	if info.DumpSink != nil {
		if err := q.dumpStreams(ctx, info.DumpSink, info, internal); err != nil {
			log.W(ctx, "Command dump callback failed: %v", err)
		}
	}
}

// nextSubmitID returns the index of the submission within the current frame.
func (q *Queue) nextSubmitID() uint32 {
	q.dumpMutex.Lock()
	defer q.dumpMutex.Unlock()
	frame := q.dev.FrameCount()
	if q.dumpedOnce && frame == q.lastFrame {
		q.submitID++
	} else {
		q.submitID = 0
	}
	q.lastFrame, q.dumpedOnce = frame, true
	return q.submitID
}

func countChunks(info *api.MultiSubmitInfo, internal *api.InternalSubmitInfo) uint32 {
	n := 0
	for _, s := range internal.Preambles() {
		n += len(s.Chunks())
	}
	sq := &info.PerSubQueueInfo[0]
	for _, cb := range sq.CmdBuffers[:sq.CmdBufferCount] {
		for _, s := range cb.CmdStreams() {
			n += len(s.Chunks())
		}
	}
	for _, s := range internal.Postambles() {
		n += len(s.Chunks())
	}
	return uint32(n)
}

// dumpStreams offers the preambles, every stream of the command buffers of
// sub-queue 0 and the postambles to sink, stopping at the first failure.
func (q *Queue) dumpStreams(ctx context.Context, sink api.DumpSink, info *api.MultiSubmitInfo, internal *api.InternalSubmitInfo) error {
	base := api.CmdBufferDumpDesc{EngineType: q.EngineType(), QueueType: q.QueueType()}
	for _, s := range internal.Preambles() {
		desc := base
		desc.SubEngineType = s.SubEngineType()
		desc.CmdBufferIdx = api.NoCmdBufferIndex
		desc.IsPreamble = true
		if err := sink.DumpCmdStream(ctx, desc, chunkDescs(s)); err != nil {
			return err
		}
	}
	sq := &info.PerSubQueueInfo[0]
	for i, cb := range sq.CmdBuffers[:sq.CmdBufferCount] {
		for _, s := range cb.CmdStreams() {
			desc := base
			desc.SubEngineType = s.SubEngineType()
			desc.CmdBufferIdx = uint32(i)
			if err := sink.DumpCmdStream(ctx, desc, chunkDescs(s)); err != nil {
				return err
			}
		}
	}
	for _, s := range internal.Postambles() {
		desc := base
		desc.SubEngineType = s.SubEngineType()
		desc.CmdBufferIdx = api.NoCmdBufferIndex
		desc.IsPostamble = true
		if err := sink.DumpCmdStream(ctx, desc, chunkDescs(s)); err != nil {
			return err
		}
	}
	return nil
}

func chunkDescs(s api.CmdStream) []api.CmdBufferChunkDumpDesc {
	chunks := s.Chunks()
	out := make([]api.CmdBufferChunkDumpDesc, len(chunks))
	for i, c := range chunks {
		out[i] = api.CmdBufferChunkDumpDesc{
			ID:       uint32(i),
			Commands: c.Commands,
			Size:     uint32(4 * len(c.Commands)),
		}
	}
	return out
}
