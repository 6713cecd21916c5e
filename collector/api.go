package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/schemawatch/collector/internal/detect"
	"github.com/hazyhaar/schemawatch/collector/internal/export"
	"github.com/hazyhaar/schemawatch/schema"
)

// List returns every snapshot sorted by operation name.
func (c *Collector) List(ctx context.Context) ([]*OperationSpec, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.store.All(ctx)
}

// Get returns the snapshot of name, or nil when there is none.
func (c *Collector) Get(ctx context.Context, name string) (*OperationSpec, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	return c.store.Get(ctx, name)
}

// ListView returns the operation names in document order.
func (c *Collector) ListView(ctx context.Context) ([]string, error) {
	specs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return export.ListView(specs), nil
}

// Export renders the Markdown document and records the export time under
// MetaLastExport. The document itself carries no timestamp.
func (c *Collector) Export(ctx context.Context) ([]byte, error) {
	specs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := export.Markdown(specs)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetMeta(ctx, MetaLastExport, c.now().UTC().Format(time.RFC3339)); err != nil {
		c.logger.Warn("collector: record export time", "error", err)
	}
	return doc, nil
}

// ExportFilename is the suggested file name of the Markdown document.
func ExportFilename() string { return export.Filename() }

// ExportHTML renders the document as sanitized HTML. It does not count as
// an export.
func (c *Collector) ExportHTML(ctx context.Context) ([]byte, error) {
	specs, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	return export.HTML(specs)
}

// JSONSchema returns the JSON Schema document of name's response.
func (c *Collector) JSONSchema(ctx context.Context, name string) (map[string]any, error) {
	spec, err := c.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if spec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return export.JSONSchema(spec), nil
}

// Check validates a decoded response against name's stored schema. It
// returns nil when the response conforms.
func (c *Collector) Check(ctx context.Context, name string, response any) error {
	spec, err := c.Get(ctx, name)
	if err != nil {
		return err
	}
	if spec == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return schema.Validate(spec.ResponseSchema, response)
}

// Clear wipes every snapshot, the fingerprint cache, the log-once
// bookkeeping and any buffered capture. Meta entries are kept.
func (c *Collector) Clear(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	dropped := c.queue.Discard()

	c.stateMu.Lock()
	c.cache = detect.New()
	c.guard = newGuard()
	c.stateMu.Unlock()

	c.logger.Info("collector: corpus cleared", "dropped_buffered", dropped)
	return nil
}

// Status reports the corpus size, the cache size, the last export time and
// the ingestion state.
func (c *Collector) Status(ctx context.Context) (Status, error) {
	if c.closed.Load() {
		return Status{}, ErrClosed
	}
	n, err := c.store.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	last, _, err := c.store.GetMeta(ctx, MetaLastExport)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Count:       n,
		CachedCount: c.detector().Len(),
		LastExport:  last,
		Ready:       c.queue.Ready(),
		Queued:      c.queue.Len(),
	}, nil
}
