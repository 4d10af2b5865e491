// Package metadata retrieves bounty metadata packages from IPFS gateways and
// extracts the human-readable fields. Retrieval is best effort: any failure
// yields nil so callers keep their placeholders and retry next cycle.
package metadata

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/redis/go-redis/v9"

	"github.com/verdikta/verdikta-applications-sub002/internal/core"
)

// maxPackageBytes bounds how much we will download from a gateway.
const maxPackageBytes = 16 << 20

const cacheKeyPrefix = "bountymirror:metadata:"

// Fetcher implements core.MetadataFetcher over ordered public gateways with an
// optional redis cache in front.
type Fetcher struct {
	gateways        []string
	syntheticPrefix string
	http            *http.Client
	cache           redis.UniversalClient
	cacheTTL        time.Duration
	logger          *slog.Logger
}

var _ core.MetadataFetcher = (*Fetcher)(nil)

// Options groups dependencies for Fetcher.
type Options struct {
	Gateways        []string              // Required: base URLs tried in order
	SyntheticPrefix string                // Optional: CIDs with this prefix are skipped, default "dev-"
	Timeout         time.Duration         // Optional: per-gateway bound, default 15s
	HTTPClient      *http.Client          // Optional: overrides Timeout (tests)
	Cache           redis.UniversalClient // Optional: CID metadata cache
	CacheTTL        time.Duration         // Optional: cache entry lifetime, default 24h
	Logger          *slog.Logger          // Optional: structured logger
}

// New builds the fetcher.
func New(opts Options) *Fetcher {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	prefix := opts.SyntheticPrefix
	if prefix == "" {
		prefix = "dev-"
	}

	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 24 * time.Hour
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "metadata_fetcher")
	}

	return &Fetcher{
		gateways:        opts.Gateways,
		syntheticPrefix: prefix,
		http:            httpClient,
		cache:           opts.Cache,
		cacheTTL:        cacheTTL,
		logger:          logger,
	}
}

// Fetch downloads the evaluation package for a CID and extracts title,
// description, and work product type. Synthetic development CIDs are skipped.
// Never returns an error: nil means "not available this cycle".
func (f *Fetcher) Fetch(ctx context.Context, cid string) *core.BountyMetadata {
	cid = strings.TrimSpace(cid)
	if cid == "" || strings.HasPrefix(cid, f.syntheticPrefix) {
		return nil
	}

	if meta := f.cacheGet(ctx, cid); meta != nil {
		return meta
	}

	for _, gateway := range f.gateways {
		data, err := f.download(ctx, gateway, cid)
		if err != nil {
			if f.logger != nil {
				f.logger.DebugContext(ctx, "gateway fetch failed",
					"gateway", gateway, "cid", cid, "error", err)
			}
			continue
		}

		meta := parsePackage(data)
		if meta == nil {
			continue
		}
		f.cachePut(ctx, cid, meta)
		return meta
	}
	return nil
}

func (f *Fetcher) download(ctx context.Context, gateway, cid string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/ipfs/%s", strings.TrimRight(gateway, "/"), cid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxPackageBytes))
}

func (f *Fetcher) cacheGet(ctx context.Context, cid string) *core.BountyMetadata {
	if f.cache == nil {
		return nil
	}
	raw, err := f.cache.Get(ctx, cacheKeyPrefix+cid).Result()
	if err != nil {
		return nil
	}
	var meta core.BountyMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return &meta
}

func (f *Fetcher) cachePut(ctx context.Context, cid string, meta *core.BountyMetadata) {
	if f.cache == nil {
		return
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, cacheKeyPrefix+cid, raw, f.cacheTTL).Err(); err != nil && f.logger != nil {
		f.logger.DebugContext(ctx, "metadata cache write failed", "cid", cid, "error", err)
	}
}

// parsePackage handles both package shapes: a ZIP evaluation package with a
// manifest, or a bare JSON document.
func parsePackage(data []byte) *core.BountyMetadata {
	if len(data) == 0 {
		return nil
	}
	if bytes.HasPrefix(data, []byte("PK")) {
		return parseZipPackage(data)
	}
	return parseJSONDocument(data)
}

func parseZipPackage(data []byte) *core.BountyMetadata {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil
	}

	manifest := readZipFile(reader, "manifest.json")
	if manifest != nil {
		if meta := parseJSONDocument(manifest); meta != nil {
			return meta
		}
	}

	// Fall back to the legacy query file with labeled sections.
	if query := readZipFile(reader, "primary_query.json"); query != nil {
		var doc struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(query, &doc); err == nil {
			if meta := parseLabeledSections(doc.Query); meta != nil {
				return meta
			}
		}
		// Some packages ship the query as raw text.
		if meta := parseLabeledSections(string(query)); meta != nil {
			return meta
		}
	}
	return nil
}

func readZipFile(reader *zip.Reader, name string) []byte {
	for _, file := range reader.File {
		if !strings.EqualFold(file.Name, name) && !strings.HasSuffix(strings.ToLower(file.Name), "/"+name) {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxPackageBytes))
		rc.Close()
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

// Extraction paths for new-format manifests, tried in order.
var manifestPaths = []struct {
	title, description, workProductType string
}{
	{"title", "description", "workProductType"},
	{"bounty.title", "bounty.description", "bounty.workProductType"},
	{"metadata.title", "metadata.description", "metadata.workProductType"},
}

func parseJSONDocument(data []byte) *core.BountyMetadata {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}

	for _, paths := range manifestPaths {
		title := searchString(paths.title, doc)
		if title == "" {
			continue
		}
		return &core.BountyMetadata{
			Title:           title,
			Description:     searchString(paths.description, doc),
			WorkProductType: searchString(paths.workProductType, doc),
		}
	}

	// Legacy manifests embed the labeled text under a query field.
	if query := searchString("query", doc); query != "" {
		return parseLabeledSections(query)
	}
	return nil
}

func searchString(expr string, doc any) string {
	result, err := jmespath.Search(expr, doc)
	if err != nil {
		return ""
	}
	s, _ := result.(string)
	return strings.TrimSpace(s)
}

// Legacy package format: a free-text query with labeled sections.
var sectionLabels = []string{"Task Title:", "Task Description:", "Work Product Type:"}

func parseLabeledSections(text string) *core.BountyMetadata {
	if !strings.Contains(text, sectionLabels[0]) {
		return nil
	}

	meta := &core.BountyMetadata{
		Title:           extractSection(text, sectionLabels[0]),
		Description:     extractSection(text, sectionLabels[1]),
		WorkProductType: extractSection(text, sectionLabels[2]),
	}
	if meta.Title == "" {
		return nil
	}
	return meta
}

// extractSection returns the text between a label and the next known label
// (or end of input).
func extractSection(text, label string) string {
	start := strings.Index(text, label)
	if start < 0 {
		return ""
	}
	rest := text[start+len(label):]

	end := len(rest)
	for _, other := range sectionLabels {
		if other == label {
			continue
		}
		if idx := strings.Index(rest, other); idx >= 0 && idx < end {
			end = idx
		}
	}
	return strings.TrimSpace(rest[:end])
}
