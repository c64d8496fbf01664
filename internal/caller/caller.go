// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package caller resolves the file, line and function of a log call site.
package caller

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Info describes a call site.
type Info struct {
	File     string
	Line     int
	Function string
}

// IsZero reports whether no call site was resolved.
func (i Info) IsZero() bool {
	return i.File == "" && i.Line == 0 && i.Function == ""
}

// Resolve returns the call site skip frames above the caller of Resolve.
// Resolve(0) describes the function that called Resolve.
func Resolve(skip int) Info {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Info{}
	}
	return Info{
		File:     trimPath(file),
		Line:     line,
		Function: functionName(pc),
	}
}

// FromPC resolves a program counter, as recorded by slog.Record.PC.
func FromPC(pc uintptr) Info {
	if pc == 0 {
		return Info{}
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	return Info{
		File:     trimPath(f.File),
		Line:     f.Line,
		Function: shortFunction(f.Function),
	}
}

// FirstLine returns the first non-empty line of a stack trace.
func FirstLine(stack string) string {
	for _, line := range strings.Split(stack, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// Frames returns the calling goroutine's stack starting at the caller of
// Frames. Frames in package runtime are skipped so the first entry names the
// code that failed.
func Frames(skip int) []Info {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []Info
	for {
		f, more := frames.Next()
		if f.Function != "" && !strings.HasPrefix(f.Function, "runtime.") {
			out = append(out, Info{
				File:     trimPath(f.File),
				Line:     f.Line,
				Function: shortFunction(f.Function),
			})
		}
		if !more {
			break
		}
	}
	return out
}

// Stack formats Frames, one "function (file:line)" per line.
func Stack(skip int) string {
	return Format(Frames(skip + 1))
}

// Format renders frames the way Stack does.
func Format(frames []Info) string {
	var b strings.Builder
	for i, f := range frames {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s (%s:%d)", f.Function, f.File, f.Line)
	}
	return b.String()
}

func functionName(pc uintptr) string {
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return shortFunction(fn.Name())
}

// shortFunction strips the import path, keeping "pkg.Func" or "pkg.(*T).Method".
func shortFunction(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// trimPath keeps the last two path elements, e.g. "orders/service.go".
func trimPath(file string) string {
	dir, base := filepath.Split(file)
	if dir == "" {
		return base
	}
	return filepath.Join(filepath.Base(filepath.Clean(dir)), base)
}
