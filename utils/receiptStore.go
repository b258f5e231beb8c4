package utils

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ReceiptStore is content-addressed blob storage for transaction receipts.
// The ledger only persists the returned object id; deleting a transaction
// deletes the blob (best effort, after the DB commit).
type ReceiptStore interface {
	Put(ctx context.Context, content io.Reader) (objectId string, err error)
	Delete(ctx context.Context, objectId string) error
}

type gcsReceiptStore struct {
	bucket string
}

// NewGCSReceiptStore builds the production store backed by GCS_BUCKET.
func NewGCSReceiptStore() (ReceiptStore, error) {
	bucket := os.Getenv("GCS_BUCKET")
	if bucket == "" {
		return nil, errors.New("GCS_BUCKET is required")
	}
	return &gcsReceiptStore{bucket: bucket}, nil
}

func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (service account / GOOGLE_APPLICATION_CREDENTIALS).
	// For local runs set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
	}
	return storage.NewClient(ctx)
}

func (s *gcsReceiptStore) Put(ctx context.Context, content io.Reader) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read receipt content: %v", err)
	}

	mimeType := http.DetectContentType(data)
	allowedMimeTypes := map[string]bool{
		"application/pdf": true,
		"image/jpeg":      true,
		"image/png":       true,
	}
	if !allowedMimeTypes[mimeType] {
		return "", fmt.Errorf("unsupported receipt type: %s", mimeType)
	}

	sum := sha256.Sum256(data)
	objectId := "receipts/" + hex.EncodeToString(sum[:])

	client, err := getGoogleClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	wc := client.Bucket(s.bucket).Object(objectId).NewWriter(ctx)
	wc.ContentType = mimeType
	if _, err := wc.Write(data); err != nil {
		return "", err
	}
	if err := wc.Close(); err != nil {
		return "", err
	}
	return objectId, nil
}

func (s *gcsReceiptStore) Delete(ctx context.Context, objectId string) error {
	if objectId == "" {
		return nil
	}
	client, err := getGoogleClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Bucket(s.bucket).Object(objectId).Delete(ctx)
}
