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

package keys_test

import (
	"context"
	"testing"

	"github.com/itrainl4/pal/core/context/keys"
)

type keyTy string

func TestCloneKeepsValues(t *testing.T) {
	ctx := context.Background()
	ctx = keys.WithValue(ctx, keyTy("a"), 1)
	ctx = keys.WithValue(ctx, keyTy("b"), 2)
	ctx = keys.WithValue(ctx, keyTy("a"), 3)

	got := keys.Get(ctx)
	if len(got) != 2 {
		t.Fatalf("Expected 2 distinct keys, got %v", got)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	detached := keys.Clone(context.Background(), cancelled)
	if detached.Err() != nil {
		t.Errorf("Clone carried over cancellation")
	}
	if v := detached.Value(keyTy("a")); v != 3 {
		t.Errorf("Expected a=3, got %v", v)
	}
	if v := detached.Value(keyTy("b")); v != 2 {
		t.Errorf("Expected b=2, got %v", v)
	}
}
