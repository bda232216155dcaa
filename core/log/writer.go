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

package log

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Writer is a function that writes out a formatted log message.
type Writer func(text string, severity Severity)

// Std returns a Writer that writes to stdout if the message severity is less
// than an error, otherwise it writes to stderr.
func Std() Writer {
	return func(text string, severity Severity) {
		out := os.Stdout
		if severity >= Error {
			out = os.Stderr
		}
		fmt.Fprintln(out, text)
	}
}

// Stdout returns a Writer that writes to stdout.
func Stdout() Writer { return To(os.Stdout) }

// To returns a Writer that writes to w.
func To(w io.Writer) Writer {
	mu := sync.Mutex{}
	return func(text string, severity Severity) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, text)
	}
}

// Buffer returns a Handler that accumulates messages. The returned function
// returns all the messages handled so far.
func Buffer() (Handler, func() []*Message) {
	mu := sync.Mutex{}
	var out []*Message
	h := NewHandler(func(m *Message) {
		mu.Lock()
		defer mu.Unlock()
		out = append(out, m)
	}, nil)
	return h, func() []*Message {
		mu.Lock()
		defer mu.Unlock()
		return append([]*Message{}, out...)
	}
}
