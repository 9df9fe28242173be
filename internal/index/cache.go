// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package index

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is the on-disk, LRU-fronted store of parsed index records for
// one registry, rooted at dir (normally <home>/registry/index/<hash>).
// The LRU front keeps repeatedly-queried packages (the common case
// during backtracking) from re-parsing their JSON-lines file on every
// resolver probe.
type Cache struct {
	dir    string
	parsed *lru.Cache[string, []Record]
}

// NewCache opens (creating if absent) the index cache rooted at dir.
func NewCache(dir string, frontSize int) (*Cache, error) {
	if frontSize <= 0 {
		frontSize = 512
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating index cache dir %s: %w", dir, err)
	}
	l, err := lru.New[string, []Record](frontSize)
	if err != nil {
		return nil, err
	}
	return &Cache{dir: dir, parsed: l}, nil
}

// Records returns every version record on file for name, most
// recently parsed result reused from the LRU front when present.
func (c *Cache) Records(name string) ([]Record, error) {
	if cached, ok := c.parsed.Get(name); ok {
		return cached, nil
	}
	path := filepath.Join(c.dir, filepath.FromSlash(RelativePath(name)))
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading index file for %q: %w", name, err)
	}

	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing index record for %q: %w", name, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning index file for %q: %w", name, err)
	}

	c.parsed.Add(name, records)
	return records, nil
}

// Invalidate drops name's cached records, forcing the next Records call
// to re-read the on-disk file (§4.C invalidate_cache()).
func (c *Cache) Invalidate(name string) {
	c.parsed.Remove(name)
}

// Exists reports whether name's index file has ever been fetched —
// distinct from Records returning zero records, which also happens
// for a package confirmed absent upstream (§4.C "HTTP-sparse
// registry" 404 handling writes an empty file rather than no file).
func (c *Cache) Exists(name string) bool {
	if c.parsed.Contains(name) {
		return true
	}
	path := filepath.Join(c.dir, filepath.FromSlash(RelativePath(name)))
	_, err := os.Stat(path)
	return err == nil
}

// Put replaces name's on-disk index file with a freshly-fetched set of
// lines and drops name from the LRU front so the next Records call
// re-reads it; used by the sparse-registry source after an HTTP fetch
// (§4.C "HTTP-sparse registry").
func (c *Cache) Put(name string, rawLines [][]byte) error {
	path := filepath.Join(c.dir, filepath.FromSlash(RelativePath(name)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	for _, l := range rawLines {
		buf.Write(bytes.TrimSpace(l))
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing index file for %q: %w", name, err)
	}
	c.parsed.Remove(name)
	return nil
}

// stripJSONComments removes // line comments (outside string literals)
// from a config.json body before parsing; /* */ block comments are not
// removed. Registry config.json files are ordinary JSON,
// but a hand-edited local registry (§4.C "Local registry") sometimes
// carries them, the same lenient-input concern the teacher's
// internal/jsonutil/comments.go addresses for JavaScript tooling
// configs; this is a narrower, single-pass port of the same line-by-
// line technique rather than a shared dependency on that package,
// since config.json is never commented by the real registry server
// and only a local, manually maintained mirror would need this.
func stripJSONComments(body []byte) []byte {
	lines := bytes.Split(body, []byte("\n"))
	for i, line := range lines {
		if idx := indexLineCommentOutsideString(string(line)); idx >= 0 {
			lines[i] = bytes.TrimRight(line[:idx], " \t")
		}
	}
	return bytes.Join(lines, []byte("\n"))
}

func indexLineCommentOutsideString(line string) int {
	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && i < len(line)-1 && ch == '/' && line[i+1] == '/' {
			return i
		}
	}
	return -1
}

// LoadConfig reads and parses a registry's root config.json.
func LoadConfig(registryDir string) (Config, error) {
	data, err := os.ReadFile(filepath.Join(registryDir, "config.json"))
	if err != nil {
		return Config{}, fmt.Errorf("reading config.json: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(stripJSONComments(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config.json: %w", err)
	}
	return cfg, nil
}

// VerifyChecksum reports whether data's sha256 digest matches the
// lower-case hex cksum recorded for a package version.
func VerifyChecksum(data []byte, cksum string) bool {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) == cksum
}
