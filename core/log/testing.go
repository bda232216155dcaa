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
	"context"
	"strings"
	"testing"
)

type testHandler struct {
	t testing.TB
	s Style
}

func (h testHandler) Handle(m *Message) {
	h.t.Helper()
	txt := h.s.Print(m)
	switch {
	case m.Severity >= Fatal:
		h.t.Fatal(txt)
	case m.Severity >= Error:
		h.t.Error(txt)
	default:
		h.t.Log(txt)
	}
}

func (testHandler) Close() {}

// TestHandler returns a Handler that logs to t.
func TestHandler(t testing.TB, s Style) Handler {
	return testHandler{t, s}
}

// Testing returns a default context with a TestHandler installed.
func Testing(t testing.TB) context.Context {
	ctx := context.Background()
	ctx = PutHandler(ctx, TestHandler(t, Normal))
	return ctx
}

// SubTest returns the context with the TestHandler replaced with one for the
// subtest t.
func SubTest(ctx context.Context, t testing.TB) context.Context {
	return PutHandler(ctx, TestHandler(t, Normal))
}

// TestName returns the last path segment of the test name.
func TestName(t testing.TB) string {
	n := t.Name()
	if i := strings.LastIndex(n, "/"); i >= 0 {
		return n[i+1:]
	}
	return n
}
