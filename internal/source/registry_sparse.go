// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package source

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/lfreleng-actions/cratebuild/internal/ident"
	"github.com/lfreleng-actions/cratebuild/internal/index"
)

// SparseRegistrySource fetches individual index files via HTTP on
// demand, using conditional requests for freshness (§4.C "HTTP-sparse
// registry"). Query/BlockUntilReady implement the poll model explicitly:
// a cache miss schedules a fetch and returns Pending; the caller must
// drive BlockUntilReady (which performs the conditional GET and primes
// the on-disk index cache) and call Query again to get Ready results.
type SparseRegistrySource struct {
	id      ident.SourceId
	baseURL string
	client  *retryablehttp.Client
	index   *index.Cache
	etags   map[string]string // name -> last-seen ETag, for If-None-Match
	pending map[string]bool
	layout  *CacheLayout
}

// NewSparseRegistrySource opens a sparse registry whose index files
// live under baseURL (e.g. "https://index.crates.io/").
func NewSparseRegistrySource(home, baseURL string) (*SparseRegistrySource, error) {
	sid, err := ident.NewSparseRegistrySource(baseURL)
	if err != nil {
		return nil, err
	}
	idx, err := index.NewCache(filepath.Join(home, "registry", "index", sid.ShortHash()), 0)
	if err != nil {
		return nil, err
	}
	client := retryablehttp.NewClient()
	client.Logger = nil
	return &SparseRegistrySource{
		id:      sid,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
		index:   idx,
		etags:   map[string]string{},
		pending: map[string]bool{},
		layout:  NewCacheLayout(home),
	}, nil
}

func (s *SparseRegistrySource) Query(dep QueryDep, kind QueryKind, sink func(Summary)) (PollResult, error) {
	names := []ident.PackageName{dep.Name}
	if kind == QueryFuzzy {
		names = append(names, dep.Name.FuzzyVariant())
	}
	result := Ready
	for _, name := range names {
		if !s.index.Exists(string(name)) {
			if !s.pending[string(name)] {
				s.pending[string(name)] = true
			}
			result = Pending
			continue
		}
		if s.pending[string(name)] {
			result = Pending
			continue
		}
		recs, err := s.index.Records(string(name))
		if err != nil {
			return Ready, fmt.Errorf("reading cached index for %s: %w", name, err)
		}
		for _, rec := range recs {
			summary, err := summaryFromRecord(s.id, rec)
			if err != nil {
				return Ready, err
			}
			if dep.Req.Matches(summary.Id.Version) {
				sink(summary)
			}
		}
		s.layout.touch(KindIndex, string(name))
	}
	return result, nil
}

// BlockUntilReady performs every scheduled conditional GET and primes
// the index cache, clearing the pending set (§4.C poll-based I/O).
func (s *SparseRegistrySource) BlockUntilReady() error {
	for name := range s.pending {
		if err := s.fetch(name); err != nil {
			return err
		}
		delete(s.pending, name)
	}
	return nil
}

func (s *SparseRegistrySource) fetch(name string) error {
	url := s.baseURL + "/" + index.RelativePath(name)
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request for %s: %w", name, err)
	}
	if etag, ok := s.etags[name]; ok {
		req.Header.Set("If-None-Match", etag)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching index for %s: %w", name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return nil
	case http.StatusNotFound:
		return s.index.Put(name, nil)
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading index body for %s: %w", name, err)
		}
		if etag := resp.Header.Get("ETag"); etag != "" {
			s.etags[name] = etag
		}
		var lines [][]byte
		for _, line := range bytes.Split(body, []byte("\n")) {
			if len(bytes.TrimSpace(line)) > 0 {
				lines = append(lines, line)
			}
		}
		return s.index.Put(name, lines)
	default:
		return fmt.Errorf("fetching index for %s: unexpected status %d", name, resp.StatusCode)
	}
}

func (s *SparseRegistrySource) Download(id ident.PackageId) (MaybePackage, error) {
	cfg, err := s.config()
	if err != nil {
		return MaybePackage{}, err
	}
	recs, err := s.index.Records(string(id.Name))
	if err != nil {
		return MaybePackage{}, err
	}
	var cksum string
	for _, rec := range recs {
		if rec.Vers == id.Version.String() {
			cksum = rec.Cksum
		}
	}
	url := index.DownloadURL(cfg, string(id.Name), id.Version.String(), cksum)
	return MaybePackage{Token: &DownloadToken{URL: url, Descriptor: id.String()}}, nil
}

func (s *SparseRegistrySource) config() (index.Config, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, s.baseURL+"/config.json", nil)
	if err != nil {
		return index.Config{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return index.Config{}, fmt.Errorf("fetching sparse registry config: %w", err)
	}
	defer resp.Body.Close()
	return index.DecodeConfig(resp.Body)
}

func (s *SparseRegistrySource) FinishDownload(id ident.PackageId, data []byte) (Package, error) {
	recs, err := s.index.Records(string(id.Name))
	if err != nil {
		return Package{}, err
	}
	for _, rec := range recs {
		if rec.Vers == id.Version.String() && rec.Cksum != "" {
			if got := sha256Hex(data); got != rec.Cksum {
				return Package{}, fmt.Errorf("checksum mismatch for %s: index says %s, got %s", id, rec.Cksum, got)
			}
		}
	}
	dest := s.layout.UnpackDir(s.id, string(id.Name), id.Version.String())
	prefix := fmt.Sprintf("%s-%s/", id.Name, id.Version)
	if err := Unpack(data, dest, prefix); err != nil {
		return Package{}, fmt.Errorf("unpacking %s: %w", id, err)
	}
	s.layout.touch(KindSrc, dest)
	cratePath := s.layout.CratePath(s.id, string(id.Name), id.Version.String())
	if err := writeFrozenCrate(cratePath, data); err != nil {
		return Package{}, err
	}
	s.layout.touch(KindCrate, cratePath)
	return Package{Id: id, Root: dest}, nil
}

func (s *SparseRegistrySource) IsYanked(id ident.PackageId) (bool, error) {
	recs, err := s.index.Records(string(id.Name))
	if err != nil {
		return false, err
	}
	for _, rec := range recs {
		if rec.Vers == id.Version.String() {
			return rec.Yanked, nil
		}
	}
	return false, nil
}

func (s *SparseRegistrySource) InvalidateCache() {
	for name := range s.etags {
		s.index.Invalidate(name)
	}
	s.etags = map[string]string{}
}
