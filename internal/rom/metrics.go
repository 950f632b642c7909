package rom

import "time"

// Metrics receives lifecycle events for monitoring.
type Metrics interface {
	BurnStarted()
	BurnFinished(ok bool)
	DownloadFinished(ok bool)
	MountClosed(reason string)
	MountDeleted()
	ScanPass(kind string, d time.Duration)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) BurnStarted()                   {}
func (NopMetrics) BurnFinished(bool)              {}
func (NopMetrics) DownloadFinished(bool)          {}
func (NopMetrics) MountClosed(string)             {}
func (NopMetrics) MountDeleted()                  {}
func (NopMetrics) ScanPass(string, time.Duration) {}
