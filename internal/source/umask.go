// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package source

import (
	"os"

	"golang.org/x/sys/unix"
)

// currentUmask reads the process umask without leaving it changed
// (§4.C step 5 "On POSIX, apply the current umask to extracted
// modes"). unix.Umask both sets and returns the previous mask, so the
// read is immediately followed by restoring it.
func currentUmask() os.FileMode {
	mask := unix.Umask(0)
	unix.Umask(mask)
	return os.FileMode(mask)
}
