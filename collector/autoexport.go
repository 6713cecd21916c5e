package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
)

// ParseSchedule validates a five-field cron expression.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("collector: export schedule %q: %w", spec, err)
	}
	return s, nil
}

// AutoExport writes the Markdown export into cfg.Export.Dir on the
// cfg.Export.Schedule cron schedule until ctx is done. It returns at once
// when no schedule is configured.
func (c *Collector) AutoExport(ctx context.Context) error {
	if c.cfg.Export.Schedule == "" {
		return nil
	}
	sched, err := ParseSchedule(c.cfg.Export.Schedule)
	if err != nil {
		return err
	}

	cr := cron.New(cron.WithLogger(cron.DiscardLogger))
	cr.Schedule(sched, cron.FuncJob(func() {
		path, err := c.ExportFile(ctx, c.cfg.Export.Dir)
		if err != nil {
			c.logger.Error("collector: scheduled export failed", "error", err)
			return
		}
		c.logger.Info("collector: scheduled export written", "path", path)
	}))
	cr.Start()
	c.logger.Info("collector: auto export enabled", "schedule", c.cfg.Export.Schedule, "dir", c.cfg.Export.Dir)

	<-ctx.Done()
	<-cr.Stop().Done()
	return nil
}

// ExportFile writes the Markdown export into dir atomically (tmp file then
// rename) and returns its path.
func (c *Collector) ExportFile(ctx context.Context, dir string) (string, error) {
	doc, err := c.Export(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("collector: mkdir %s: %w", dir, err)
	}
	target := filepath.Join(dir, ExportFilename())
	if err := writeAtomic(target, doc); err != nil {
		return "", err
	}
	return target, nil
}

func writeAtomic(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("collector: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("collector: rename: %w", err)
	}
	return nil
}
