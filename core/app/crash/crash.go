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

// Package crash reports uncaught panics on goroutines started by the module.
//
// crash does not offer any sort of global crash recovery mechanism.
package crash

import (
	"runtime/debug"
	"sync"
)

var (
	mutex     sync.RWMutex
	reporters []Reporter
)

// Reporter is a function that reports an uncaught panic that will crash the
// application. stack holds the formatted goroutine stack at the panic site.
type Reporter func(e interface{}, stack []byte)

// Register adds r to the list of functions that gets called when an uncaught
// panic is thrown.
func Register(r Reporter) {
	mutex.Lock()
	defer mutex.Unlock()
	reporters = append(reporters, r)
}

func handler() {
	if e := recover(); e != nil {
		Crash(e)
	}
}

// Go calls f on a new go-routine, reporting any uncaught panics to the
// registered crash handlers.
func Go(f func()) {
	go func() {
		defer handler()
		f()
	}()
}

var crashOnce = sync.Once{}

// Crash invokes each of the registered crash reporters with e, then panics with
// e.
func Crash(e interface{}) {
	stack := debug.Stack()
	crashOnce.Do(func() {
		mutex.RLock()
		defer mutex.RUnlock()
		for _, r := range reporters {
			r(e, stack)
		}
	})
	panic(e)
}
