package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/disintegration/imaging"
	"google.golang.org/api/option"
)

// getGoogleClient initializes a Google Cloud Storage client
func getGoogleClient(ctx context.Context) (*storage.Client, error) {
	// Prefer ADC (Cloud Run service account / GOOGLE_APPLICATION_CREDENTIALS).
	// If you need to provide explicit JSON (e.g. locally), set GCS_CREDENTIALS_JSON.
	if credJSON := os.Getenv("GCS_CREDENTIALS_JSON"); strings.TrimSpace(credJSON) != "" {
		client, err := storage.NewClient(ctx, option.WithCredentialsJSON([]byte(credJSON)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Allowed MIME types for agent verification documents and payment proofs.
var allowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// UploadFileToGCS uploads a verification document or payment proof and
// returns the public object URL.
func UploadFileToGCS(ctx context.Context, objectName string, fileContent io.Reader) (string, error) {
	fileData, err := io.ReadAll(fileContent)
	if err != nil {
		return "", fmt.Errorf("failed to read file content: %v", err)
	}

	mimeType := http.DetectContentType(fileData)
	if !allowedMimeTypes[mimeType] {
		return "", fmt.Errorf("unsupported file type: %s", mimeType)
	}

	client, err := getGoogleClient(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	bucketName := os.Getenv("GCS_BUCKET")
	if bucketName == "" {
		return "", errors.New("GCS_BUCKET is required")
	}

	if _, err := client.Bucket(bucketName).Attrs(ctx); err != nil {
		return "", fmt.Errorf("gcs bucket %q not found or not accessible: %v", bucketName, err)
	}

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = mimeType
	wc.Metadata = map[string]string{
		"x-goog-acl": "public-read",
	}
	if _, err = wc.Write(fileData); err != nil {
		return "", err
	}
	if err := wc.Close(); err != nil {
		return "", err
	}

	// Images additionally get a thumbnail for the admin review UI.
	if strings.HasPrefix(mimeType, "image/") {
		if err := uploadThumbnail(ctx, client, bucketName, objectName, fileData); err != nil {
			// Thumbnail failure must not lose the original upload.
			return ObjectURL(bucketName, objectName), nil
		}
	}

	return ObjectURL(bucketName, objectName), nil
}

func uploadThumbnail(ctx context.Context, client *storage.Client, bucketName, objectName string, fileData []byte) error {
	img, _, err := image.Decode(bytes.NewReader(fileData))
	if err != nil {
		return err
	}
	thumb := imaging.Fit(img, 320, 320, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return err
	}

	wc := client.Bucket(bucketName).Object(thumbObjectName(objectName)).NewWriter(ctx)
	wc.ContentType = "image/jpeg"
	if _, err := wc.Write(buf.Bytes()); err != nil {
		return err
	}
	return wc.Close()
}

func thumbObjectName(objectName string) string {
	if idx := strings.LastIndex(objectName, "."); idx > 0 {
		return objectName[:idx] + "_thumb.jpg"
	}
	return objectName + "_thumb.jpg"
}

func ObjectURL(bucketName, objectName string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucketName, objectName)
}
