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
	"bytes"
	"fmt"
	"strings"
	"time"
)

// Style provides customization for printing messages.
type Style struct {
	Name      string
	Timestamp bool
	Tag       bool
	Trace     bool
	Values    bool
	Severity  SeverityStyle
}

// SeverityStyle is an enumerator of ways the severity is printed.
type SeverityStyle int

const (
	// NoSeverity omits the severity from the message.
	NoSeverity SeverityStyle = iota
	// SeverityShort prints the severity as a single character.
	SeverityShort
	// SeverityLong prints the full severity name.
	SeverityLong
)

var (
	// Raw is a style that only prints the text of the message.
	Raw = Style{Name: "raw"}

	// Brief is a style that only prints the text and the severity.
	Brief = Style{Name: "brief", Severity: SeverityShort}

	// Normal is a style that prints the message with a short severity, tag
	// and values.
	Normal = Style{
		Name:     "normal",
		Tag:      true,
		Values:   true,
		Severity: SeverityShort,
	}

	// Detailed is a style that prints everything about the message.
	Detailed = Style{
		Name:      "detailed",
		Timestamp: true,
		Tag:       true,
		Trace:     true,
		Values:    true,
		Severity:  SeverityLong,
	}
)

// Styles lists all the predefined styles.
var Styles = []Style{Raw, Brief, Normal, Detailed}

// StyleByName returns the predefined style with the given name.
func StyleByName(name string) (Style, bool) {
	for _, s := range Styles {
		if s.Name == name {
			return s, true
		}
	}
	return Normal, false
}

// Handler returns a new Handler configured to write to out and err with the
// given style.
func (s Style) Handler(w Writer) Handler {
	return NewHandler(func(m *Message) { w(s.Print(m), m.Severity) }, nil)
}

// Print returns the message msg printed with the style s.
func (s Style) Print(msg *Message) string {
	buf := bytes.Buffer{}
	s.print(&buf, msg)
	return buf.String()
}

func (s Style) print(buf *bytes.Buffer, msg *Message) {
	if s.Timestamp && !msg.Time.IsZero() {
		buf.WriteString(msg.Time.Format(time.StampMilli))
		buf.WriteRune(' ')
	}
	switch s.Severity {
	case SeverityShort:
		buf.WriteString(msg.Severity.Short())
		buf.WriteRune(' ')
	case SeverityLong:
		buf.WriteString(msg.Severity.String())
		buf.WriteRune(' ')
	}
	if s.Tag && msg.Tag != "" {
		buf.WriteRune('[')
		buf.WriteString(msg.Tag)
		buf.WriteString("] ")
	}
	if s.Trace && len(msg.Trace) > 0 {
		for i := len(msg.Trace) - 1; i >= 0; i-- {
			buf.WriteString(msg.Trace[i])
			buf.WriteString(" → ")
		}
	}
	buf.WriteString(msg.Text)
	if s.Values && len(msg.Values) > 0 {
		parts := make([]string, len(msg.Values))
		for i, v := range msg.Values {
			parts[i] = fmt.Sprintf("%v: %v", v.Name, v.Value)
		}
		buf.WriteString("\n  ⇒ ")
		buf.WriteString(strings.Join(parts, "\n  ⇒ "))
	}
}
