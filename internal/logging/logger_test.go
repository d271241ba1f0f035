// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package logging

import "testing"

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", "unknown"} {
		logger := NewLogger("info", format)
		if logger == nil {
			t.Fatalf("format %q: expected non-nil logger", format)
		}
	}
}

func TestNewLogger_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", "unknown"} {
		logger := NewLogger(level, "json")
		if logger == nil {
			t.Fatalf("level %q: expected non-nil logger", level)
		}
	}
}
