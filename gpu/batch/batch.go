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

// Package batch holds the operations a stalled queue defers, in the order
// they were issued.
package batch

import (
	"fmt"

	"github.com/itrainl4/pal/gpu/api"
	"github.com/itrainl4/pal/gpu/pack"
)

// Kind identifies a deferred operation.
type Kind int

const (
	Submit Kind = iota
	SignalSemaphore
	WaitSemaphore
	PresentDirect
	Delay
	AssociateFenceWithLastSubmit
)

var kindNames = [...]string{
	"Submit",
	"SignalSemaphore",
	"WaitSemaphore",
	"PresentDirect",
	"Delay",
	"AssociateFenceWithLastSubmit",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Op is one deferred operation. Only the fields of its Kind are set.
type Op struct {
	Kind Kind

	// Submit
	Package *pack.Package

	// SignalSemaphore, WaitSemaphore
	Semaphore api.Semaphore
	Value     uint64

	// PresentDirect
	Present api.PresentDirectInfo

	// Delay, in milliseconds
	Delay float32

	// AssociateFenceWithLastSubmit
	Fence api.Fence
}

func (o Op) String() string {
	switch o.Kind {
	case SignalSemaphore, WaitSemaphore:
		return fmt.Sprintf("%v(%v)", o.Kind, o.Value)
	case Delay:
		return fmt.Sprintf("%v(%vms)", o.Kind, o.Delay)
	default:
		return o.Kind.String()
	}
}

// Log is a FIFO of deferred operations. It is not safe for concurrent use;
// the owning queue guards it with its own lock.
type Log struct {
	limit int
	ops   []Op
	head  int
}

// NewLog returns a Log that holds at most limit operations. A limit <= 0
// means no limit.
func NewLog(limit int) *Log {
	return &Log{limit: limit}
}

// Push appends op. It returns api.ErrOutOfMemory if the log is full.
func (l *Log) Push(op Op) error {
	if l.limit > 0 && l.Len() >= l.limit {
		return api.ErrOutOfMemory
	}
	if l.head > 0 && l.head == len(l.ops) {
		l.ops, l.head = l.ops[:0], 0
	}
	l.ops = append(l.ops, op)
	return nil
}

// Pop removes and returns the oldest operation.
func (l *Log) Pop() (Op, bool) {
	if l.Len() == 0 {
		return Op{}, false
	}
	op := l.ops[l.head]
	l.ops[l.head] = Op{}
	l.head++
	if l.head == len(l.ops) {
		l.ops, l.head = l.ops[:0], 0
	}
	return op, true
}

// Len returns the number of pending operations.
func (l *Log) Len() int { return len(l.ops) - l.head }

// Kinds returns the kinds of the pending operations, oldest first.
func (l *Log) Kinds() []Kind {
	out := make([]Kind, 0, l.Len())
	for _, op := range l.ops[l.head:] {
		out = append(out, op.Kind)
	}
	return out
}
