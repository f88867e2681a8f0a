package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/avast/retry-go"
)

// DownloadStatement fetches an uploaded statement object from GCS. Transient
// failures are retried a few times; a missing object is not.
func DownloadStatement(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("DownloadStatement: create storage client: %w", err)
	}
	defer client.Close()

	var data []byte
	err = retry.Do(
		func() error {
			r, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
			if err != nil {
				return err
			}
			defer r.Close()

			data, err = io.ReadAll(r)
			return err
		},
		retry.Attempts(3),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, storage.ErrObjectNotExist)
		}),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("DownloadStatement: read gs://%s/%s: %w", bucketName, objectName, err)
	}

	return data, nil
}
