package rom

import (
	"os"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
)

// DefaultCleanupGrace is how long a closed mount is kept past its expiry.
const DefaultCleanupGrace = 3 * time.Hour

// Cleanup expires stale mounts and reclaims their disk space.
type Cleanup struct {
	mounts    *MountService
	downloads Downloader
	grace     time.Duration
	clock     Clock
	metrics   Metrics
	logger    Logger

	now      time.Time
	toDelete []string
}

var _ Handler[model.Mount] = (*Cleanup)(nil)

// NewCleanupFactory returns a Handler factory for the Scanner.
func NewCleanupFactory(mounts *MountService, downloads Downloader, grace time.Duration, clock Clock, metrics Metrics, logger Logger) func() Handler[model.Mount] {
	if grace <= 0 {
		grace = DefaultCleanupGrace
	}
	return func() Handler[model.Mount] {
		return &Cleanup{
			mounts:    mounts,
			downloads: downloads,
			grace:     grace,
			clock:     clock,
			metrics:   metrics,
			logger:    logger,
		}
	}
}

func (c *Cleanup) Initialize() {
	c.now = c.clock.Now()
	c.toDelete = nil
}

func (c *Cleanup) OnEntity(m model.Mount) {
	switch m.State {
	case model.MountOpenInUse:
		if m.ExpiresAt.After(c.now) {
			return
		}
		c.close(m, model.MountOpenInUse, "expired")
	case model.MountDownloading:
		if c.downloads.IsDownloading(m.ID) {
			return
		}
		c.close(m, model.MountDownloading, "stuck")
	case model.MountClosedNotUsed:
		if m.ExpiresAt.Add(c.grace).Before(c.now) {
			c.toDelete = append(c.toDelete, m.ID)
		}
	}
}

func (c *Cleanup) close(m model.Mount, from model.MountState, reason string) {
	closed, err := c.mounts.CloseMount(m.ID, from)
	if err != nil {
		c.logger.Error("closing mount", "mount", m.ID, "error", err)
		return
	}
	if !closed {
		return
	}
	c.metrics.MountClosed(reason)
	c.logger.Info("mount closed by cleanup", "mount", m.ID, "reason", reason)

	// A long-expired mount may already be past its grace period.
	m.State = model.MountClosedNotUsed
	c.OnEntity(m)
}

// Finish deletes the queued mounts. Each record is removed before its
// directory so the store never references a directory that is gone.
func (c *Cleanup) Finish() {
	cutoff := c.now.Add(-c.grace)
	layout := c.mounts.Layout()
	for _, id := range c.toDelete {
		m, removed, err := c.mounts.RemoveMount(id, cutoff)
		if err != nil {
			c.logger.Error("deleting mount record", "mount", id, "error", err)
			continue
		}
		if !removed {
			continue
		}
		for _, path := range []string{m.Path, layout.ZipPath(id), layout.SealedPath(id)} {
			if err := os.RemoveAll(path); err != nil {
				c.logger.Warn("removing mount files", "mount", id, "path", path, "error", err)
			}
		}
		c.metrics.MountDeleted()
		c.logger.Info("mount deleted", "mount", id)
	}
}
