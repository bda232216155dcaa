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

package fault

// One keeps only the first non-nil error handed to it.
// It is used by teardown paths that must keep going after a failure but still
// report what went wrong first.
type One struct{ err error }

// First returns the first error collected, or nil.
func (o *One) First() error {
	return o.err
}

// Collect records err if it is the first non-nil error seen.
func (o *One) Collect(err error) {
	if err == nil || o.err != nil {
		return
	}
	o.err = err
}

// List keeps every non-nil error handed to it, in order.
type List []error

// First returns the first error in the list, or nil when empty.
func (l List) First() error {
	if len(l) == 0 {
		return nil
	}
	return l[0]
}

// Collect appends err to the list if it is not nil.
func (l *List) Collect(err error) {
	if err != nil {
		*l = append(*l, err)
	}
}
