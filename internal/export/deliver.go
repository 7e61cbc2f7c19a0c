package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tau-omega/stadsmonitor/internal/cloudwriter"
	"github.com/tau-omega/stadsmonitor/internal/models"
)

// Uploader pushes exported files to cloud object storage.
type Uploader struct {
	factory cloudwriter.CloudWriterFactory
	bucket  string
}

func NewUploader(cfg *models.Config) (*Uploader, error) {
	var factory cloudwriter.CloudWriterFactory
	var err error

	switch cfg.CloudStorage.Provider {
	case "s3":
		factory, err = cloudwriter.NewS3WriterFactory(cfg.CloudStorage.Region)
	default:
		return nil, fmt.Errorf("unsupported cloud storage provider: %s", cfg.CloudStorage.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud writer factory: %w", err)
	}

	return &Uploader{factory: factory, bucket: cfg.CloudStorage.BucketName}, nil
}

func (u *Uploader) Upload(objectPath string, data []byte) error {
	w, err := u.factory.NewWriter(u.bucket, objectPath)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

// Deliver writes an export to the configured destination and returns
// where it went. Local delivery lands in the output folder, cloud
// delivery in the configured bucket.
func Deliver(cfg *models.Config, name, format string, data []byte) (string, error) {
	filename := fmt.Sprintf("%s.%s", name, format)

	if cfg.OutputDestination == "local" || cfg.OutputDestination == "" {
		if err := os.MkdirAll(cfg.OutputFolder, os.ModePerm); err != nil {
			return "", err
		}
		path := filepath.Join(cfg.OutputFolder, filename)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", err
		}
		return path, nil
	}

	uploader, err := NewUploader(cfg)
	if err != nil {
		return "", err
	}
	objectPath := filepath.Join(cfg.OutputFolder, filename)
	if err := uploader.Upload(objectPath, data); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s", cfg.CloudStorage.BucketName, objectPath), nil
}
