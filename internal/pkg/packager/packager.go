package packager

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

// Archive names inside a scope.
const (
	DocumentsArchive       = "documents.zip"
	SignedDocumentsArchive = "signed_documents.zip"
)

const zipContentType = "application/zip"

// ObjectStore is the storage the archives are written to.
type ObjectStore interface {
	Put(ctx context.Context, objectKey string, body []byte, contentType string) (string, error)
	Get(ctx context.Context, location string) ([]byte, error)
}

// Document is one named file.
type Document struct {
	FileName string
	Content  []byte
}

// ScopeKey groups the archives of one event.
type ScopeKey struct {
	CampaignID string
	CNPJ       string
	EventID    string
}

// ObjectKey returns "<campaign>/<cnpj>/<event>/<archive>".
func (k ScopeKey) ObjectKey(archive string) string {
	return path.Join(k.CampaignID, k.CNPJ, k.EventID, archive)
}

// Packager zips documents into the object store and reads them back.
type Packager struct {
	store ObjectStore
}

func New(store ObjectStore) *Packager {
	return &Packager{store: store}
}

// PackageDocuments writes one archive entry per document and returns the archive location.
func (p *Packager) PackageDocuments(ctx context.Context, scope ScopeKey, archive string, docs []Document) (string, error) {
	const op = "packager.PackageDocuments"
	if len(docs) == 0 {
		return "", apperrors.Validation(op, "no documents to package", nil)
	}

	body, err := Zip(docs)
	if err != nil {
		return "", apperrors.Storage(op, "build archive", err)
	}
	if n, err := countEntries(body); err != nil || n != len(docs) {
		return "", apperrors.Storage(op, fmt.Sprintf("archive has %d entries for %d documents", n, len(docs)), err)
	}

	location, err := p.store.Put(ctx, scope.ObjectKey(archive), body, zipContentType)
	if err != nil {
		return "", apperrors.Storage(op, "upload archive", err)
	}
	log.Infof("[Packager] Stored %d document(s) at %s", len(docs), location)
	return location, nil
}

// Unpack downloads the archive at location and returns its entries in order.
func (p *Packager) Unpack(ctx context.Context, location string) ([]Document, error) {
	const op = "packager.Unpack"
	if location == "" {
		return nil, apperrors.Storage(op, "empty archive location", nil)
	}
	body, err := p.store.Get(ctx, location)
	if err != nil {
		return nil, apperrors.Storage(op, "download archive", err)
	}
	docs, err := Unzip(body)
	if err != nil {
		return nil, apperrors.Storage(op, "read archive "+location, err)
	}
	return docs, nil
}

// Zip builds an archive with one entry per document. Repeated file names get a numeric
// suffix so every document keeps its own entry.
func Zip(docs []Document) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	seen := make(map[string]int, len(docs))
	for _, doc := range docs {
		name := uniqueName(doc.FileName, seen)
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("create entry %q: %w", name, err)
		}
		if _, err := w.Write(doc.Content); err != nil {
			return nil, fmt.Errorf("write entry %q: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unzip returns the entries of an archive built by Zip.
func Unzip(body []byte) ([]Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %q: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %q: %w", f.Name, err)
		}
		docs = append(docs, Document{FileName: f.Name, Content: content})
	}
	return docs, nil
}

func countEntries(body []byte) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return 0, err
	}
	return len(zr.File), nil
}

func uniqueName(name string, seen map[string]int) string {
	if name == "" {
		name = "document"
	}
	seen[name]++
	if seen[name] == 1 {
		return name
	}
	ext := path.Ext(name)
	candidate := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), seen[name], ext)
	for seen[candidate] > 0 {
		seen[name]++
		candidate = fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), seen[name], ext)
	}
	seen[candidate]++
	return candidate
}
