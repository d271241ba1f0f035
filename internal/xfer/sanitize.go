// Copyright (c) 2026 The Meshwave Authors. All rights reserved.
// Use of this source code is governed by an MIT-style license
// that can be found in the LICENSE file.

package xfer

import (
	"fmt"
	"strings"
)

// sanitizeBasename rejects a sender-supplied FILE_META basename that
// could escape the save directory: path separators, NUL bytes, "." and
// "..", and the empty string.
func sanitizeBasename(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("xfer: empty basename")
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("xfer: basename %q contains a path separator", name)
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("xfer: basename %q contains a null byte", name)
	}
	if name == "." || name == ".." {
		return "", fmt.Errorf("xfer: basename %q is a path traversal sequence", name)
	}
	return name, nil
}
