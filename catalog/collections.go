package catalog

import (
	"context"
	"net/http"

	"github.com/poiesic/archivist/core"
)

type createCollection struct {
	Name string `json:"name"`
}

type createIngestion struct {
	Path      *string         `json:"path,omitempty"`
	Name      *string         `json:"name,omitempty"`
	Languages []core.Language `json:"languages"`
	Fixed     *bool           `json:"fixed,omitempty"`
	Default   *bool           `json:"default,omitempty"`
}

// GetOrInsertCollection returns the collection named by the first segment of
// ingestionURI, creating it if the catalog does not know it. When created,
// the returned value is the one the server sent back.
func (c *Client) GetOrInsertCollection(ctx context.Context, ingestionURI core.URI) (*core.Collection, error) {
	name := ingestionURI.Collection()

	resp, err := c.do(ctx, http.MethodGet, "/api/collections/"+segment(name), nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return c.insertCollection(ctx, name)
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var coll core.Collection
		if err := decode(resp, &coll); err != nil {
			return nil, err
		}
		return &coll, nil
	default:
		return nil, statusError(resp.StatusCode)
	}
}

func (c *Client) insertCollection(ctx context.Context, name string) (*core.Collection, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/collections", createCollection{Name: name})
	if err != nil {
		return nil, err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusCreated {
		return nil, statusError(resp.StatusCode)
	}
	var coll core.Collection
	if err := decode(resp, &coll); err != nil {
		return nil, err
	}
	c.logger.Info("created collection", "collection", name)
	return &coll, nil
}

// GetOrInsertIngestion makes sure coll holds ingestionURI. It does nothing
// when the ingestion is already listed, and otherwise creates it with the
// source path and languages. Created ingestions are never fixed or default.
func (c *Client) GetOrInsertIngestion(ctx context.Context, ingestionURI core.URI, coll *core.Collection, path string, languages []core.Language) error {
	if coll == nil {
		return ErrCollectionRequired
	}
	if coll.HasIngestion(ingestionURI) {
		c.logger.Debug("ingestion already exists", "ingestion", ingestionURI.String())
		return nil
	}

	name := ingestionURI.Ingestion()
	no := false
	if languages == nil {
		languages = []core.Language{}
	}
	form := createIngestion{
		Path:      &path,
		Name:      &name,
		Languages: languages,
		Fixed:     &no,
		Default:   &no,
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/collections/"+segment(ingestionURI.Collection()), form)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode)
	}
	c.logger.Info("created ingestion", "ingestion", ingestionURI.String())
	return nil
}

// DeleteCollection removes a collection. The catalog answers 204 on success.
func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/collections/"+segment(collection), nil)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusNoContent {
		return statusError(resp.StatusCode)
	}
	return nil
}
