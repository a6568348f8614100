package service

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/ternarybob/arbor"

	"safetyqa/internal/domain"
)

// SourceInfo attributes the n-th PDF of the archive to a title and URL.
type SourceInfo struct {
	Title string  `json:"title"`
	URL   *string `json:"url"`
}

// IngestSummary reports what an ingestion run wrote.
type IngestSummary struct {
	Files   int
	Skipped int
	Chunks  int
}

// Ingester turns an archive of PDFs into stored chunks.
type Ingester struct {
	extractor domain.TextExtractor
	chunker   domain.Chunker
	writer    domain.ChunkWriter
	logger    arbor.ILogger
}

// NewIngester wires the extraction, chunking and storage steps.
func NewIngester(extractor domain.TextExtractor, chunker domain.Chunker, writer domain.ChunkWriter, logger arbor.ILogger) *Ingester {
	return &Ingester{extractor: extractor, chunker: chunker, writer: writer, logger: logger}
}

// LoadSources reads the attribution list. An empty path means no attribution.
func LoadSources(p string) ([]SourceInfo, error) {
	if p == "" {
		return nil, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read sources %s: %w", p, err)
	}
	var sources []SourceInfo
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("decode sources %s: %w", p, err)
	}
	return sources, nil
}

// IngestArchive extracts every PDF in the zip at archivePath and appends its
// chunks. PDFs are attributed by their position among the archive's PDF
// entries; files that fail extraction still consume a position.
func (i *Ingester) IngestArchive(ctx context.Context, archivePath string, sources []SourceInfo) (IngestSummary, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return IngestSummary{}, fmt.Errorf("open archive %s: %w", archivePath, err)
	}
	defer zr.Close()
	return i.ingestZip(ctx, &zr.Reader, sources)
}

func (i *Ingester) ingestZip(ctx context.Context, zr *zip.Reader, sources []SourceInfo) (IngestSummary, error) {
	var files []*zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".pdf") && !strings.HasPrefix(f.Name, "__MACOSX") {
			files = append(files, f)
		}
	}
	i.logger.Info().Int("pdfs", len(files)).Msg("Found PDFs to process")

	var summary IngestSummary
	for idx, f := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Files++

		text, err := i.extractFile(f)
		if err != nil {
			i.logger.Warn().Err(err).Str("file", f.Name).Msg("Failed to extract PDF")
			summary.Skipped++
			continue
		}
		if strings.TrimSpace(text) == "" {
			i.logger.Warn().Str("file", f.Name).Msg("No text extracted")
			summary.Skipped++
			continue
		}

		src := attribution(idx, path.Base(f.Name), sources)
		pieces := i.chunker.Chunk(text)
		batch := make([]domain.NewChunk, len(pieces))
		for j, p := range pieces {
			batch[j] = domain.NewChunk{Text: p, SourceTitle: src.Title, SourceURL: src.URL}
		}
		if _, err := i.writer.Append(ctx, batch); err != nil {
			return summary, fmt.Errorf("store chunks of %s: %w", f.Name, err)
		}
		summary.Chunks += len(batch)
		i.logger.Debug().Str("file", f.Name).Str("title", src.Title).Int("chunks", len(batch)).Msg("Ingested PDF")
	}

	i.logger.Info().
		Int("files", summary.Files).
		Int("skipped", summary.Skipped).
		Int("chunks", summary.Chunks).
		Msg("Finished writing chunks")
	return summary, nil
}

func (i *Ingester) extractFile(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return i.extractor.Extract(data)
}

func attribution(idx int, fallbackTitle string, sources []SourceInfo) SourceInfo {
	if idx >= len(sources) {
		return SourceInfo{Title: fallbackTitle}
	}
	src := sources[idx]
	if src.Title == "" {
		src.Title = fallbackTitle
	}
	return src
}
