package services

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/evidentium/custodia/internal/digest"
	"github.com/evidentium/custodia/internal/models"
	"github.com/evidentium/custodia/internal/repository"
	"github.com/evidentium/custodia/internal/storage"
)

const derivativeNotice = "The files under this directory are DERIVATIVES generated for viewing\n" +
	"convenience. They are NOT original evidence. Originals live under the\n" +
	"Exhibit_NNN directories and are listed with their digests in INDEX.json.\n"

// ExportOptions controls a court package build.
type ExportOptions struct {
	Exhibits                []models.ExhibitRequest
	IncludeDerivativeViewer bool
	GeneratedAt             time.Time
}

// ExportService builds self-verifying court packages: numbered exhibits
// copied verbatim, a machine-readable index, and a package-level hash, all
// inside one archive whose own digest is returned to the caller.
type ExportService interface {
	BuildPackage(ctx context.Context, caseID uuid.UUID, opts ExportOptions, w io.Writer) (*models.PackageResult, error)
}

var _ ExportService = (*exportService)(nil)

type exportService struct {
	caseRepo     repository.CaseRepository
	evidenceRepo repository.EvidenceRepository
	jobRepo      repository.JobRepository
	store        storage.BlobStore
}

// NewExportService wires the court package exporter.
func NewExportService(
	caseRepo repository.CaseRepository,
	evidenceRepo repository.EvidenceRepository,
	jobRepo repository.JobRepository,
	store storage.BlobStore,
) ExportService {
	return &exportService{caseRepo: caseRepo, evidenceRepo: evidenceRepo, jobRepo: jobRepo, store: store}
}

// countingHashWriter tees archive bytes into the digest so the returned
// archive hash covers exactly what the caller received.
type countingHashWriter struct {
	w    io.Writer
	h    io.Writer
	size int64
}

func (c *countingHashWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.h.Write(p[:n])
		c.size += int64(n)
	}
	return n, err
}

// BuildPackage writes the archive to w in caller-supplied exhibit order.
// A missing original skips that exhibit with a logged warning rather than
// aborting the build; the result reports the true counts.
func (s *exportService) BuildPackage(
	ctx context.Context,
	caseID uuid.UUID,
	opts ExportOptions,
	w io.Writer,
) (*models.PackageResult, error) {
	c, err := s.caseRepo.GetByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrCaseNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, fmt.Errorf("loading case for export: %w", err)
	}
	if len(opts.Exhibits) == 0 {
		return nil, fmt.Errorf("%w: no exhibits requested", ErrValidation)
	}

	generatedAt := opts.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}
	generatedAt = generatedAt.UTC()

	hasher := sha256.New()
	counter := &countingHashWriter{w: w, h: hasher}
	zw := zip.NewWriter(counter)

	// path → digest of every file written, in write order. Recorded as
	// each file goes in, so INDEX.json covers all of its predecessors.
	fileDigests := make(map[string]string)
	var entries []models.ExhibitEntry
	var writtenIDs []uuid.UUID
	skipped := 0

	for i, req := range opts.Exhibits {
		ordinal := fmt.Sprintf("%03d", i+1)

		entry, err := s.writeExhibit(ctx, zw, caseID, ordinal, req, generatedAt, fileDigests)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) || errors.Is(err, repository.ErrEvidenceNotFound) {
				log.Printf("[ExportService] Skipping exhibit %s (%s): %v", ordinal, req.EvidenceID, err)
				skipped++
				continue
			}
			return nil, err
		}
		entries = append(entries, *entry)
		writtenIDs = append(writtenIDs, req.EvidenceID)
	}

	if opts.IncludeDerivativeViewer {
		noticePath := "Derivative_Viewer/NOTICE.txt"
		if err := writeZipFile(zw, noticePath, []byte(derivativeNotice), generatedAt); err != nil {
			return nil, err
		}
		fileDigests[noticePath] = digest.SHA256Text(derivativeNotice)

		for i, entry := range entries {
			artifacts, err := s.jobRepo.ListArtifactsByEvidence(ctx, writtenIDs[i])
			if err != nil {
				return nil, fmt.Errorf("listing artifacts for exhibit %s: %w", entry.Ordinal, err)
			}
			for _, a := range artifacts {
				path := fmt.Sprintf("Derivative_Viewer/Exhibit_%s/%s.txt", entry.Ordinal, a.Kind)
				if err := writeZipFile(zw, path, []byte(a.Content), generatedAt); err != nil {
					return nil, err
				}
				fileDigests[path] = a.SHA256
			}
		}
	}

	csvBytes, err := buildIndexCSV(entries)
	if err != nil {
		return nil, err
	}
	if err := writeZipFile(zw, "INDEX.csv", csvBytes, generatedAt); err != nil {
		return nil, err
	}
	fileDigests["INDEX.csv"] = digest.SHA256(csvBytes)

	indexBytes, err := buildIndexJSON(c, entries, fileDigests, generatedAt)
	if err != nil {
		return nil, err
	}
	if err := writeZipFile(zw, "INDEX.json", indexBytes, generatedAt); err != nil {
		return nil, err
	}
	indexSHA := digest.SHA256(indexBytes)

	packageHash := indexSHA + "  INDEX.json\n"
	if err := writeZipFile(zw, "PACKAGE_HASH.txt", []byte(packageHash), generatedAt); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}

	result := &models.PackageResult{
		ArchiveSHA256:    hex.EncodeToString(hasher.Sum(nil)),
		IndexSHA256:      indexSHA,
		ExhibitsWritten:  len(entries),
		ExhibitsSkipped:  skipped,
		Exhibits:         entries,
		ArchiveSizeBytes: counter.size,
	}

	log.Printf("[ExportService] Court package for case %s built: %d exhibit(s), %d skipped, archive sha256 %s",
		caseID, result.ExhibitsWritten, result.ExhibitsSkipped, result.ArchiveSHA256)
	return result, nil
}

// writeExhibit streams one original into the archive verbatim, hashing the
// bytes on the way through.
func (s *exportService) writeExhibit(
	ctx context.Context,
	zw *zip.Writer,
	caseID uuid.UUID,
	ordinal string,
	req models.ExhibitRequest,
	generatedAt time.Time,
	fileDigests map[string]string,
) (*models.ExhibitEntry, error) {
	rec, err := s.evidenceRepo.GetByID(ctx, req.EvidenceID)
	if err != nil {
		return nil, err
	}
	if rec.CaseID != caseID {
		return nil, fmt.Errorf("%w: evidence %s belongs to a different case", ErrValidation, rec.ID)
	}
	if !rec.Finalized() {
		return nil, fmt.Errorf("%w: evidence %s is not finalized", ErrValidation, rec.ID)
	}

	rc, err := s.store.Download(ctx, rec.ObjectKey)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			log.Printf("[ExportService] Closing blob reader for %q: %v", rec.ObjectKey, closeErr)
		}
	}()

	path := fmt.Sprintf("Exhibit_%s/%s", ordinal, rec.Filename)
	fw, err := newZipEntry(zw, path, generatedAt)
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(fw, h), rc)
	if err != nil {
		return nil, fmt.Errorf("copying exhibit %s: %w", ordinal, err)
	}
	sum := hex.EncodeToString(h.Sum(nil))
	fileDigests[path] = sum

	if !digest.EqualHex(sum, *rec.SHA256) {
		// Surfaced, never downgraded: exporting an altered original would
		// defeat the package's purpose.
		return nil, fmt.Errorf("exhibit %s: blob digest %s does not match recorded %s: integrity violation",
			ordinal, sum, *rec.SHA256)
	}

	return &models.ExhibitEntry{
		Ordinal:     ordinal,
		EvidenceID:  rec.ID.String(),
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		SizeBytes:   size,
		SHA256:      sum,
		Description: req.Description,
	}, nil
}

func newZipEntry(zw *zip.Writer, path string, modified time.Time) (io.Writer, error) {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     path,
		Method:   zip.Deflate,
		Modified: modified,
	})
	if err != nil {
		return nil, fmt.Errorf("creating archive entry %q: %w", path, err)
	}
	return fw, nil
}

func writeZipFile(zw *zip.Writer, path string, content []byte, modified time.Time) error {
	fw, err := newZipEntry(zw, path, modified)
	if err != nil {
		return err
	}
	if _, err := fw.Write(content); err != nil {
		return fmt.Errorf("writing archive entry %q: %w", path, err)
	}
	return nil
}

func buildIndexCSV(entries []models.ExhibitEntry) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	if err := cw.Write([]string{"exhibit", "evidence_id", "filename", "content_type", "size_bytes", "sha256", "description"}); err != nil {
		return nil, fmt.Errorf("writing index csv header: %w", err)
	}
	for _, e := range entries {
		row := []string{e.Ordinal, e.EvidenceID, e.Filename, e.ContentType,
			strconv.FormatInt(e.SizeBytes, 10), e.SHA256, e.Description}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("writing index csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flushing index csv: %w", err)
	}
	return buf.Bytes(), nil
}

func buildIndexJSON(
	c *models.Case,
	entries []models.ExhibitEntry,
	fileDigests map[string]string,
	generatedAt time.Time,
) ([]byte, error) {
	index := map[string]any{
		"case": map[string]any{
			"case_number": c.CaseNumber,
			"id":          c.ID.String(),
			"title":       c.Title,
		},
		"exhibits":     entries,
		"files":        fileDigests,
		"generated_at": generatedAt.Format(time.RFC3339Nano),
	}
	b, err := json.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("encoding INDEX.json: %w", err)
	}
	return b, nil
}
