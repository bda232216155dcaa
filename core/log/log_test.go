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

package log_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/itrainl4/pal/core/log"
)

func TestFilterDropsLowSeverity(t *testing.T) {
	h, msgs := log.Buffer()
	ctx := log.PutHandler(context.Background(), h)
	ctx = log.PutFilter(ctx, log.SeverityFilter(log.Warning))
	log.D(ctx, "debug")
	log.I(ctx, "info")
	log.W(ctx, "warning")
	log.E(ctx, "error")
	got := msgs()
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Text != "warning" || got[1].Severity != log.Error {
		t.Errorf("unexpected messages %+v %+v", got[0], got[1])
	}
}

func TestValuesAndTag(t *testing.T) {
	h, msgs := log.Buffer()
	ctx := log.PutHandler(context.Background(), h)
	ctx = log.PutTag(ctx, "queue")
	ctx = log.Enter(ctx, "Submit")
	ctx = log.V{"id": 3}.Bind(ctx)
	ctx = log.V{"id": 4, "type": "gfx"}.Bind(ctx)
	ctx = log.PutClock(ctx, log.NoClock)
	log.I(ctx, "hello %v", "world")

	m := msgs()[0]
	if m.Tag != "queue" || m.Text != "hello world" {
		t.Errorf("unexpected message %+v", m)
	}
	if len(m.Values) != 2 || m.Values[0].Name != "id" || m.Values[0].Value != 4 {
		t.Errorf("unexpected values %v", m.Values)
	}
	out := log.Detailed.Print(m)
	if !strings.Contains(out, "Submit → hello world") {
		t.Errorf("detailed print missing trace: %q", out)
	}
}

func TestErrWrapsCause(t *testing.T) {
	ctx := log.PutTag(context.Background(), "drain")
	cause := errors.New("boom")
	err := log.Errf(ctx, cause, "replay %d", 2)
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is failed for %v", err)
	}
	if !strings.Contains(err.Error(), "replay 2") {
		t.Errorf("unexpected error text %q", err.Error())
	}
}

func TestChannelDeliversInOrder(t *testing.T) {
	h, msgs := log.Buffer()
	ch := log.Channel(h, 4)
	ctx := log.PutHandler(context.Background(), ch)
	for i := 0; i < 10; i++ {
		log.I(ctx, "%d", i)
	}
	ch.Close()
	got := msgs()
	if len(got) != 10 {
		t.Fatalf("got %d messages, want 10", len(got))
	}
	for i, m := range got {
		if m.Text != string(rune('0'+i)) {
			t.Errorf("message %d: got %q", i, m.Text)
		}
	}
}
