package metadata

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipPackage(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestFetch_SkipsSyntheticAndEmptyCIDs(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls++
	}))
	defer srv.Close()

	f := New(Options{Gateways: []string{srv.URL}})

	assert.Nil(t, f.Fetch(context.Background(), ""))
	assert.Nil(t, f.Fetch(context.Background(), "dev-12345"))
	assert.Equal(t, 0, calls)
}

func TestFetch_JSONManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/QmManifest", r.URL.Path)
		w.Write([]byte(`{"title":"Design a logo","description":"Vector format","workProductType":"design"}`)) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(Options{Gateways: []string{srv.URL}})
	meta := f.Fetch(context.Background(), "QmManifest")

	require.NotNil(t, meta)
	assert.Equal(t, "Design a logo", meta.Title)
	assert.Equal(t, "Vector format", meta.Description)
	assert.Equal(t, "design", meta.WorkProductType)
}

func TestFetch_GatewayFallback(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"title":"From second gateway"}`)) //nolint:errcheck
	}))
	defer good.Close()

	f := New(Options{Gateways: []string{bad.URL, good.URL}})
	meta := f.Fetch(context.Background(), "QmManifest")

	require.NotNil(t, meta)
	assert.Equal(t, "From second gateway", meta.Title)
}

func TestFetch_AllGatewaysFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Options{Gateways: []string{srv.URL}})
	assert.Nil(t, f.Fetch(context.Background(), "QmMissing"))
}

func TestFetch_ZipPackageWithManifest(t *testing.T) {
	pkg := zipPackage(t, map[string]string{
		"manifest.json": `{"bounty":{"title":"Zip bounty","description":"From manifest"}}`,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(pkg) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(Options{Gateways: []string{srv.URL}})
	meta := f.Fetch(context.Background(), "QmZip")

	require.NotNil(t, meta)
	assert.Equal(t, "Zip bounty", meta.Title)
	assert.Equal(t, "From manifest", meta.Description)
}

func TestFetch_ZipPackageLegacyQuery(t *testing.T) {
	pkg := zipPackage(t, map[string]string{
		"primary_query.json": `{"query":"Task Title: Legacy bounty\nTask Description: Old format\nWork Product Type: report"}`,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(pkg) //nolint:errcheck
	}))
	defer srv.Close()

	f := New(Options{Gateways: []string{srv.URL}})
	meta := f.Fetch(context.Background(), "QmLegacyZip")

	require.NotNil(t, meta)
	assert.Equal(t, "Legacy bounty", meta.Title)
	assert.Equal(t, "Old format", meta.Description)
	assert.Equal(t, "report", meta.WorkProductType)
}

func TestParseJSONDocument(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantNil   bool
		wantTitle string
	}{
		{
			name:      "top level fields",
			doc:       `{"title":"Top","description":"d"}`,
			wantTitle: "Top",
		},
		{
			name:      "nested under bounty",
			doc:       `{"bounty":{"title":"Nested"}}`,
			wantTitle: "Nested",
		},
		{
			name:      "nested under metadata",
			doc:       `{"metadata":{"title":"Meta"}}`,
			wantTitle: "Meta",
		},
		{
			name:      "labeled query field",
			doc:       `{"query":"Task Title: Queried\nTask Description: via query"}`,
			wantTitle: "Queried",
		},
		{
			name:    "no recognizable fields",
			doc:     `{"something":"else"}`,
			wantNil: true,
		},
		{
			name:    "not json",
			doc:     `plain text`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := parseJSONDocument([]byte(tt.doc))
			if tt.wantNil {
				assert.Nil(t, meta)
				return
			}
			require.NotNil(t, meta)
			assert.Equal(t, tt.wantTitle, meta.Title)
		})
	}
}

func TestParseLabeledSections(t *testing.T) {
	text := "Task Title: Build a parser\nTask Description: Handle all three sections\nWork Product Type: code"

	meta := parseLabeledSections(text)
	require.NotNil(t, meta)
	assert.Equal(t, "Build a parser", meta.Title)
	assert.Equal(t, "Handle all three sections", meta.Description)
	assert.Equal(t, "code", meta.WorkProductType)
}

func TestParseLabeledSections_OrderIndependent(t *testing.T) {
	text := "Work Product Type: code\nTask Title: Out of order\nTask Description: labels shuffled"

	meta := parseLabeledSections(text)
	require.NotNil(t, meta)
	assert.Equal(t, "Out of order", meta.Title)
	assert.Equal(t, "labels shuffled", meta.Description)
	assert.Equal(t, "code", meta.WorkProductType)
}

func TestParseLabeledSections_NoTitle(t *testing.T) {
	assert.Nil(t, parseLabeledSections("Task Description: only a description"))
	assert.Nil(t, parseLabeledSections("free text with no labels"))
}

func TestParsePackage_Empty(t *testing.T) {
	assert.Nil(t, parsePackage(nil))
	assert.Nil(t, parsePackage([]byte{}))
}
