// Package origin fetches raw asset payloads from the remote content service.
//
// Each category maps to one templated request path. Binary categories
// (animations, images) return the response body directly. Sound categories
// return a JSON envelope whose type discriminator says whether an embedded
// audio payload exists at all; a foreign discriminator means the identity
// legitimately has no such asset, which is not a failure.
package origin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/karstlight/assetcache/asset"
)

// ErrNotPresent reports that the origin has no asset for this identity.
// Callers must treat it as a legitimate outcome, not a failure.
var ErrNotPresent = errors.New("asset not present at origin")

// EnvelopeTypeEmbedded is the sound envelope discriminator carrying an
// embedded, text-encoded audio payload. Every other value means "no asset".
const EnvelopeTypeEmbedded = "embedded"

// Config locates the content service.
type Config struct {
	BaseURL string
	Region  string
	Version string
}

// Fetcher retrieves raw payloads from the content service.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New creates a fetcher. A nil client falls back to http.DefaultClient.
func New(cfg Config, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{cfg: cfg, client: client}
}

type requestKind int

const (
	kindBinary requestKind = iota
	kindEnvelope
)

type route struct {
	kind requestKind
	path func(cfg Config, ref asset.Ref) (string, error)
}

var routes = map[asset.Category]route{
	asset.CategoryEntityAnimation: {kindBinary, func(cfg Config, ref asset.Ref) (string, error) {
		return fmt.Sprintf("%s/%s/animations/%d/%s.gif",
			cfg.Region, cfg.Version, ref.EntityID, url.PathEscape(ref.Variant)), nil
	}},
	asset.CategoryAvatarAnimation: {kindBinary, func(cfg Config, ref asset.Ref) (string, error) {
		if ref.Look == nil {
			return "", asset.ErrRefIncomplete
		}
		return fmt.Sprintf("%s/%s/avatars/%d/%s/%d/%s.gif",
			cfg.Region, cfg.Version, ref.Look.BodyID, joinItemIDs(ref.Look.ItemIDs),
			ref.Look.PaletteID, url.PathEscape(ref.Variant)), nil
	}},
	asset.CategoryMusic: {kindEnvelope, func(cfg Config, ref asset.Ref) (string, error) {
		return fmt.Sprintf("%s/%s/music/%s",
			cfg.Region, cfg.Version, escapePath(ref.Path)), nil
	}},
	asset.CategoryEntitySound: {kindEnvelope, func(cfg Config, ref asset.Ref) (string, error) {
		return fmt.Sprintf("%s/%s/sounds/%d/%s.json",
			cfg.Region, cfg.Version, ref.EntityID, url.PathEscape(ref.Variant)), nil
	}},
	asset.CategoryUISound: {kindEnvelope, func(cfg Config, ref asset.Ref) (string, error) {
		return fmt.Sprintf("%s/%s/ui/sounds/%s.json",
			cfg.Region, cfg.Version, escapePath(ref.Path)), nil
	}},
	asset.CategoryImage: {kindBinary, func(cfg Config, ref asset.Ref) (string, error) {
		return fmt.Sprintf("%s/%s/images/%s/%d/%s.png",
			cfg.Region, cfg.Version, url.PathEscape(ref.AssetType), ref.EntityID,
			url.PathEscape(ref.Variant)), nil
	}},
}

// URL resolves the request URL for one ref.
func (f *Fetcher) URL(ref asset.Ref) (string, error) {
	rt, ok := routes[ref.Category]
	if !ok {
		return "", asset.ErrCategoryInvalid
	}
	suffix, err := rt.path(f.cfg, ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(f.cfg.BaseURL, "/") + "/" + suffix, nil
}

// Fetch retrieves the raw payload for ref, in the form the decode strategy
// for its category accepts (response body for binary categories, the
// embedded text payload for sound envelopes).
//
// A missing asset returns ErrNotPresent; transport and protocol failures
// return other errors.
func (f *Fetcher) Fetch(ctx context.Context, ref asset.Ref) ([]byte, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	rt := routes[ref.Category]
	target, err := f.URL(ref)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotPresent
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", target, err)
	}

	if rt.kind == kindEnvelope {
		return extractEnvelope(body)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty response", target)
	}
	return body, nil
}

func joinItemIDs(ids []int) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for _, id := range sorted {
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}

func escapePath(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
