// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package index

import (
	"path"
	"strings"
)

// RelativePath computes the index path for a package name under the
// prefix rule from §6: "1", "2", "3/<first-letter>", or
// "<first-2>/<second-2>" according to name length, lower-cased.
func RelativePath(name string) string {
	lower := strings.ToLower(name)
	switch {
	case len(lower) == 1:
		return path.Join("1", lower)
	case len(lower) == 2:
		return path.Join("2", lower)
	case len(lower) == 3:
		return path.Join("3", lower[:1], lower)
	default:
		return path.Join(lower[:2], lower[2:4], lower)
	}
}

// DownloadURL expands cfg's templated tarball URL with the placeholders
// defined in §6: {crate}, {version}, {prefix}, {lowerprefix},
// {sha256-checksum}.
func DownloadURL(cfg Config, name, version, cksum string) string {
	rel := RelativePath(name)
	prefix := path.Dir(rel)
	if prefix == "." {
		prefix = ""
	}
	r := strings.NewReplacer(
		"{crate}", name,
		"{version}", version,
		"{prefix}", prefix,
		"{lowerprefix}", strings.ToLower(prefix),
		"{sha256-checksum}", cksum,
	)
	return r.Replace(cfg.DL)
}
