package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/kmt-crawler/internal/archive"
	"github.com/JakeFAU/kmt-crawler/internal/hash/sha256"
)

// Default document names.
const (
	DefaultJSONName = "kmt_output.json"
	DefaultCSVName  = "kmt_output.csv"
)

// BlobStore writes rendered documents and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Config names the exported documents.
type Config struct {
	// Prefix is prepended to object paths; empty writes at the store root.
	Prefix   string
	JSONName string
	CSVName  string
	// SkipCSV disables the report-style CSV document.
	SkipCSV bool
}

// Artifact describes one stored document.
type Artifact struct {
	Name   string `json:"name"`
	URI    string `json:"uri"`
	Bytes  int    `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Exporter renders papers and hands the documents to a BlobStore.
type Exporter struct {
	cfg    Config
	store  BlobStore
	hasher *sha256.Hasher
	logger *zap.Logger
}

// NewExporter builds an Exporter.
func NewExporter(cfg Config, store BlobStore, logger *zap.Logger) (*Exporter, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if cfg.JSONName == "" {
		cfg.JSONName = DefaultJSONName
	}
	if cfg.CSVName == "" {
		cfg.CSVName = DefaultCSVName
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{cfg: cfg, store: store, hasher: sha256.New(), logger: logger}, nil
}

// Export writes the JSON document and, unless disabled, the CSV report. A
// non-empty subdir is placed between the configured prefix and the names.
func (e *Exporter) Export(ctx context.Context, subdir string, papers []archive.PaperRecord) ([]Artifact, error) {
	var artifacts []Artifact

	var jsonBuf bytes.Buffer
	if err := WriteJSON(&jsonBuf, papers); err != nil {
		return nil, err
	}
	a, err := e.put(ctx, subdir, e.cfg.JSONName, "application/json; charset=utf-8", jsonBuf.Bytes())
	if err != nil {
		return nil, err
	}
	artifacts = append(artifacts, a)

	if e.cfg.SkipCSV {
		return artifacts, nil
	}
	var csvBuf bytes.Buffer
	if err := WriteCSV(&csvBuf, papers); err != nil {
		return artifacts, err
	}
	a, err = e.put(ctx, subdir, e.cfg.CSVName, "text/csv; charset=utf-8", csvBuf.Bytes())
	if err != nil {
		return artifacts, err
	}
	return append(artifacts, a), nil
}

func (e *Exporter) put(ctx context.Context, subdir, name, contentType string, data []byte) (Artifact, error) {
	objectPath := strings.TrimPrefix(path.Join(strings.Trim(e.cfg.Prefix, "/"), strings.Trim(subdir, "/"), name), "/")
	uri, err := e.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s: %w", objectPath, err)
	}
	artifact := Artifact{
		Name:   name,
		URI:    uri,
		Bytes:  len(data),
		SHA256: e.hasher.Hash(data),
	}
	e.logger.Info("saved document", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return artifact, nil
}
