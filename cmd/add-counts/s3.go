// SPDX-FileCopyrightText: 2022 Sascha Brawer <sascha@brawer.ch>
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/brawer/wikiviews/internal/compressed"
)

// S3 is the subset of minio.Client used in this program.
//
// We define our own interface for easier testing, so we only have to fake
// those parts of the (rather big) S3 interface that we actually use.
// A fake implementation for tests is in FakeS3, implemented in s3_test.go.
type S3 interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewStorageClient sets up a client for accessing S3-compatible object
// storage. The key file contains JSON like {"Endpoint":…, "Key":…, "Secret":…}.
func NewStorageClient(keypath string) (*minio.Client, error) {
	data, err := os.ReadFile(keypath)
	if err != nil {
		return nil, err
	}

	var config struct{ Endpoint, Key, Secret string }
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.Key, config.Secret, ""),
		Secure: true,
	})
	if err != nil {
		return nil, err
	}

	client.SetAppInfo("WikiViewsAddCounts", "0.1")
	return client, nil
}

// Upload stores the output files of a run, and its report, in S3 storage.
// Objects are named like "add-counts/identifiers.csv.gz".
func Upload(ctx context.Context, s3 S3, bucket string, report *RunReport, reportPath string) error {
	exists, err := s3.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("storage bucket %q does not exist", bucket)
	}

	paths := make([]string, 0, len(report.Files)+1)
	for _, f := range report.Files {
		paths = append(paths, f.Output)
	}
	paths = append(paths, reportPath)

	for _, path := range paths {
		dest := "add-counts/" + filepath.Base(path)
		if err := PutInStorage(ctx, path, s3, bucket, dest, contentType(path)); err != nil {
			return fmt.Errorf("uploading %s: %w", path, err)
		}
		if logger != nil {
			logger.Printf("uploaded to storage: %s/%s", bucket, dest)
		}
	}
	return nil
}

// PutInStorage stores a file in S3 storage.
func PutInStorage(ctx context.Context, file string, s3 S3, bucket string, dest string, contentType string) error {
	options := minio.PutObjectOptions{ContentType: contentType}
	_, err := s3.FPutObject(ctx, bucket, dest, file, options)
	return err
}

func contentType(path string) string {
	switch compressed.Ext(path) {
	case ".gz":
		return "application/gzip"
	case ".bz2":
		return "application/x-bzip2"
	case ".zst":
		return "application/zstd"
	case ".br":
		return "application/x-brotli"
	case ".xz":
		return "application/x-xz"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
