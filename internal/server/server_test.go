package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
	"github.com/JakeFAU/kmt-crawler/internal/config"
)

const reactionXML = `<reaction>
  <reactionSmiles>CCO&gt;&gt;CC=O</reactionSmiles>
  <molecule><role>reactant</role><name>ethanol</name><smiles>CCO</smiles><ratio>1</ratio></molecule>
</reaction>`

func newArchiveServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/archive", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
<li>Oxidation study 2021 <a href="/archive/doi/10.1000/abc/start/0">reaction data</a></li>
<li><a href="/about">About</a></li>
</ul></body></html>`)
	})
	mux.HandleFunc("/archive/doi/10.1000/abc/start/0", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>
<a href="/detail/1">Details</a>
<a href="/archive/doi/10.1000/abc/start/1">Next</a>
</body></html>`)
	})
	mux.HandleFunc("/archive/doi/10.1000/abc/start/1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/detail/2">Details</a></body></html>`)
	})
	mux.HandleFunc("/detail/1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/detail/1/xml">XML</a></body></html>`)
	})
	mux.HandleFunc("/detail/1/xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, reactionXML)
	})
	mux.HandleFunc("/detail/2", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>no data</body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Archive.URL = baseURL + "/archive"
	cfg.Archive.BaseURL = baseURL
	cfg.Archive.MaxPapers = 0
	cfg.Headless.Enabled = false
	cfg.Output.Dir = t.TempDir()
	cfg.Output.Summary = false
	return &cfg
}

func TestBuildAndRunStaticSession(t *testing.T) {
	srv := newArchiveServer(t)
	cfg := testConfig(t, srv.URL)

	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(cfg.Output.Dir, "kmt_output.json"))
	require.NoError(t, err)

	var papers []archive.PaperRecord
	require.NoError(t, json.Unmarshal(data, &papers))
	require.Len(t, papers, 1)
	paper := papers[0]
	assert.Equal(t, "10.1000/abc", archive.Value(paper.DOI))
	assert.Equal(t, 2, paper.DetailsScanned)
	assert.Nil(t, paper.Error)
	require.Len(t, paper.Reactions, 2)
	assert.Equal(t, "CCO>>CC=O", archive.Value(paper.Reactions[0].OverallReactionSMILES))
	require.Len(t, paper.Reactions[0].Molecules, 1)
	assert.Equal(t, "ethanol", archive.Value(paper.Reactions[0].Molecules[0].Name))
	assert.Nil(t, paper.Reactions[1].OverallReactionSMILES)

	_, err = os.Stat(filepath.Join(cfg.Output.Dir, "kmt_output.csv"))
	require.NoError(t, err)
}

func TestRunWritesNothingWithoutEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/archive", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/about">About</a></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg := testConfig(t, srv.URL)

	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, a.Run(context.Background()))

	entries, err := os.ReadDir(cfg.Output.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBuildFailsOnBadDatabaseDSN(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.DB.DSN = "://not-a-dsn"

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "record store init failed")
}
