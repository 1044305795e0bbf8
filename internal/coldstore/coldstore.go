/*
LICENSE
  Copyright (C) 2026 the Clipforge authors

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Package coldstore implements the optional GCS mirror: before the janitor
// deletes a sealed past_actdl or VOD-range file to reclaim disk, it can
// first upload a copy here, so a clip request for that same range made
// after local eviction can still be served by restoring it.
package coldstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"

	"github.com/clipforge/clipforge/internal/clipsvc"
)

// Mirror uploads to, and restores from, a single GCS bucket. The zero value
// (or one constructed with an empty bucket) is disabled: Upload is a no-op
// and Restore always reports DownloadCacheMissing.
type Mirror struct {
	bucket string
	client *storage.Client
}

// New constructs a Mirror backed by bucket. An empty bucket returns a
// disabled Mirror without touching the network.
func New(ctx context.Context, bucket string) (*Mirror, error) {
	if bucket == "" {
		return &Mirror{}, nil
	}
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("coldstore: creating storage client: %w", err)
	}
	return &Mirror{bucket: bucket, client: c}, nil
}

// Enabled reports whether this Mirror is backed by a real bucket.
func (m *Mirror) Enabled() bool { return m.bucket != "" }

// Upload copies the local file at path to the bucket under objectName. The
// janitor calls this just before it would otherwise delete path.
func (m *Mirror) Upload(ctx context.Context, path, objectName string) error {
	if !m.Enabled() {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("coldstore: opening %s: %w", path, err)
	}
	defer f.Close()

	w := m.client.Bucket(m.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return fmt.Errorf("coldstore: uploading %s: %w", objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("coldstore: closing upload of %s: %w", objectName, err)
	}
	return nil
}

// Restore copies objectName from the bucket down to localPath so a clip
// request for an already-evicted file can still be served.
func (m *Mirror) Restore(ctx context.Context, objectName, localPath string) error {
	if !m.Enabled() {
		return clipsvc.DownloadCacheMissing{Reason: "cold storage mirror is disabled"}
	}
	r, err := m.client.Bucket(m.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return clipsvc.DownloadCacheMissing{Reason: "evicted file is not present in cold storage either"}
		}
		return fmt.Errorf("coldstore: opening %s: %w", objectName, err)
	}
	defer r.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("coldstore: creating %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("coldstore: restoring %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying storage client, if one was created.
func (m *Mirror) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}
