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
	"fmt"
)

// Err creates a new error that wraps cause with the current logging
// information.
func Err(ctx context.Context, cause error, msg string) error {
	return &err{
		cause: cause,
		msg:   From(ctx).Message(Error, false, msg),
	}
}

// Errf creates a new error that wraps cause with the current logging
// information.
func Errf(ctx context.Context, cause error, fmt_ string, args ...interface{}) error {
	return Err(ctx, cause, fmt.Sprintf(fmt_, args...))
}

type err struct {
	cause error
	msg   *Message
}

func (e err) Error() string {
	s := Normal.Print(e.msg)
	if e.cause != nil {
		s += "\n   Cause: " + e.cause.Error()
	}
	return s
}

// Cause returns the wrapped error, for use with errors.Cause.
func (e err) Cause() error { return e.cause }

// Unwrap returns the wrapped error, for use with errors.Is.
func (e err) Unwrap() error { return e.cause }
