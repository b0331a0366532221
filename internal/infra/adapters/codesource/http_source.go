// File: internal/infra/adapters/codesource/http_source.go
package codesource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"license-activation/internal/domain/model"
	"license-activation/internal/domain/ports/adapter"
	"license-activation/internal/infra/metrics"
)

// maxDocumentBytes caps the published list we are willing to read.
const maxDocumentBytes = 8 << 20

var _ adapter.CodeSource = (*HTTPSource)(nil)

// HTTPSource reads the published code list with a plain GET. Each tier in the
// document is either an array of codes or an object whose keys are codes.
type HTTPSource struct {
	url    string
	client *http.Client
	log    *zerolog.Logger
}

func NewHTTPSource(sourceURL string, timeout time.Duration, logger *zerolog.Logger) (*HTTPSource, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("invalid code source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid code source url: unsupported scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "CodeSource").Logger()
	return &HTTPSource{url: sourceURL, client: &http.Client{Timeout: timeout}, log: &l}, nil
}

func (s *HTTPSource) Fetch(ctx context.Context) (*model.CodePool, error) {
	start := time.Now()
	pool, err := s.fetch(ctx)
	metrics.ObserveCodeSourceFetch(time.Since(start).Seconds(), err == nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("code source fetch failed")
		return nil, err
	}
	s.log.Debug().Int("size", pool.Size()).Dur("took", time.Since(start)).Msg("code source fetched")
	return pool, nil
}

func (s *HTTPSource) fetch(ctx context.Context) (*model.CodePool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("code source: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("code source: read body: %w", err)
	}
	return ParseDocument(body)
}

// ParseDocument decodes a published list. Unknown top-level keys are ignored;
// a tier that is missing or null is empty.
func ParseDocument(b []byte) (*model.CodePool, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("code source: decode: %w", err)
	}
	pool := model.NewCodePool()
	for _, tier := range model.Tiers {
		raw, ok := doc[tier.String()]
		if !ok {
			continue
		}
		codes, err := decodeTier(raw)
		if err != nil {
			return nil, fmt.Errorf("code source: tier %s: %w", tier, err)
		}
		pool.Tier(tier).Add(codes...)
	}
	return pool, nil
}

func decodeTier(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	switch raw[0] {
	case '[':
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return trimAll(list), nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return trimAll(keys), nil
	}
	return nil, errors.New("expected an array or an object")
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, c := range in {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
