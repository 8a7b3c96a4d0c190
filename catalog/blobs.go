package catalog

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/poiesic/archivist/core"
)

// BlobPageSize is the most blobs the catalog returns from one ListBlobs call.
const BlobPageSize = 500

// BlobFilter narrows ListBlobs.
type BlobFilter int

const (
	// FilterAll lists every blob in the collection.
	FilterAll BlobFilter = iota
	// FilterInMultiple lists only blobs referenced by more than one ingestion.
	FilterInMultiple
)

// ParseBlobFilter accepts "all" and "in-multiple".
func ParseBlobFilter(s string) (BlobFilter, error) {
	switch s {
	case "all", "":
		return FilterAll, nil
	case "in-multiple":
		return FilterInMultiple, nil
	default:
		return FilterAll, fmt.Errorf("%w %q: must be all or in-multiple", ErrInvalidFilter, s)
	}
}

func (f BlobFilter) String() string {
	if f == FilterInMultiple {
		return "in-multiple"
	}
	return "all"
}

type blobsResponse struct {
	Blobs []core.Blob `json:"blobs"`
}

// ListBlobs returns up to BlobPageSize blobs of a collection.
func (c *Client) ListBlobs(ctx context.Context, collection string, filter BlobFilter) ([]core.Blob, error) {
	q := url.Values{}
	q.Set("inMultiple", fmt.Sprint(filter == FilterInMultiple))
	q.Set("collection", collection)

	resp, err := c.do(ctx, http.MethodGet, "/api/blobs?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode)
	}
	var body blobsResponse
	if err := decode(resp, &body); err != nil {
		return nil, err
	}
	return body.Blobs, nil
}

// DeleteBlob removes a blob even when it has children, as archives do.
func (c *Client) DeleteBlob(ctx context.Context, uri string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/blobs/"+segment(uri)+"?checkChildren=false", nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp.StatusCode)
	}
	return nil
}

// CheckHashExists reports whether the catalog already holds a resource with
// the given content hash.
func (c *Client) CheckHashExists(ctx context.Context, hash string) (bool, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/resources/"+segment(hash)+"?basic=true", nil)
	if err != nil {
		return false, err
	}
	defer drain(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		return false, core.ErrAuth
	}
	return resp.StatusCode == http.StatusOK, nil
}

// DeleteAllBlobs deletes a collection's blobs one page at a time until the
// catalog lists none, and returns how many were deleted.
func (c *Client) DeleteAllBlobs(ctx context.Context, collection string) (int, error) {
	deleted := 0
	for {
		blobs, err := c.ListBlobs(ctx, collection, FilterAll)
		if err != nil {
			return deleted, err
		}
		if len(blobs) == 0 {
			return deleted, nil
		}
		for _, b := range blobs {
			if err := ctx.Err(); err != nil {
				return deleted, err
			}
			if err := c.DeleteBlob(ctx, b.URI); err != nil {
				return deleted, fmt.Errorf("delete blob %s: %w", b.URI, err)
			}
			deleted++
		}
		c.logger.Info("deleted blobs", "collection", collection, "count", deleted)
	}
}
