package rom_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/fs"
	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
	"github.com/durability-labs/ultra-data-burning-rom/internal/testutil"
)

func newCleanupScanner(env *testutil.Env) *rom.Scanner {
	s := rom.NewScanner(env.Store, time.Hour, rom.NopMetrics{}, rom.NewNopLogger())
	rom.Attach(s, rom.NewCleanupFactory(env.Mounts, env.Downloads, time.Hour, env.Clock, rom.NopMetrics{}, rom.NewNopLogger()))
	return s
}

func TestCleanup_ExpiresOpenMounts(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{Lifetime: 2 * time.Hour})
	r := seedRom(t, env, map[string]string{"a": "1"}, model.RomInfo{})
	m := mountRom(t, env, r.CID)
	scanner := newCleanupScanner(env)

	scanner.RunOnce()
	if got := getMount(t, env, m.ID); got.State != model.MountOpenInUse {
		t.Fatalf("fresh mount state = %s, want OpenInUse", got.State)
	}

	env.Clock.Advance(2*time.Hour + time.Minute)
	scanner.RunOnce()
	if got := getMount(t, env, m.ID); got.State != model.MountClosedNotUsed {
		t.Errorf("expired mount state = %s, want ClosedNotUsed", got.State)
	}
	if _, err := os.Stat(m.Path); err != nil {
		t.Errorf("closed mount directory removed before grace: %v", err)
	}

	env.Clock.Advance(time.Hour)
	scanner.RunOnce()
	if _, err := env.Mounts.Get(m.ID); !errors.Is(err, rom.ErrNotFound) {
		t.Errorf("Get() after grace error = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(m.Path); !os.IsNotExist(err) {
		t.Errorf("mount directory still present: %v", err)
	}

	// The ROM survives and can be mounted again.
	again := mountRom(t, env, r.CID)
	if again.ID == m.ID || again.State != model.MountOpenInUse {
		t.Errorf("remount = %+v", again)
	}
}

func TestCleanup_LongExpiredMountDeletedInOnePass(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	r := seedRom(t, env, map[string]string{"a": "1"}, model.RomInfo{})
	m := mountRom(t, env, r.CID)

	env.Clock.Advance(30 * 24 * time.Hour)
	newCleanupScanner(env).RunOnce()
	if _, err := env.Mounts.Get(m.ID); !errors.Is(err, rom.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestCleanup_StuckDownload(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	r := seedRom(t, env, map[string]string{"a": "1"}, model.RomInfo{})
	scanner := newCleanupScanner(env)

	release := env.Node.Hold()
	if err := env.Mounts.BeginMount(r.CID); err != nil {
		t.Fatal(err)
	}
	mountID := getRom(t, env, r.CID).CurrentMountID
	scanner.RunOnce()
	if got := getMount(t, env, mountID); got.State != model.MountDownloading {
		t.Errorf("in-flight download state = %s, want Downloading", got.State)
	}

	env.Node.FailDownloads(errors.New("lost"))
	release()
	env.Downloads.Wait()

	scanner.RunOnce()
	if got := getMount(t, env, mountID); got.State != model.MountClosedNotUsed {
		t.Errorf("stuck download state = %s, want ClosedNotUsed", got.State)
	}
}

// lateDownloader registers a launched download only after the first
// IsDownloading call, as a download does when the cleanup pass reads the
// mount record just before BeginMount hands it to the downloader.
type lateDownloader struct {
	mu     sync.Mutex
	checks int
	onDone func() error
}

func (d *lateDownloader) LaunchDownload(_ model.Rom, _ model.Mount, onDone func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDone = onDone
}

func (d *lateDownloader) IsDownloading(string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++
	return d.onDone != nil && d.checks > 1
}

func TestCleanup_DownloadRegisteredAfterScanRead(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	r := seedRom(t, env, map[string]string{"a": "1"}, model.RomInfo{})

	downloads := &lateDownloader{}
	mounts, err := rom.NewMountService(env.Store, downloads, fs.NewOSLister(nil), rom.MountConfig{
		Layout: rom.Layout{
			Root:   filepath.Join(t.TempDir(), "mounts"),
			ZipDir: filepath.Join(t.TempDir(), "zips"),
		},
	}, env.Clock, env.IDs, rom.NewNopLogger())
	if err != nil {
		t.Fatalf("NewMountService() error = %v", err)
	}
	if err := mounts.BeginMount(r.CID); err != nil {
		t.Fatalf("BeginMount() error = %v", err)
	}
	mountID := getRom(t, env, r.CID).CurrentMountID

	h := rom.NewCleanupFactory(mounts, downloads, time.Hour, env.Clock, rom.NopMetrics{}, rom.NewNopLogger())()
	h.Initialize()
	m, err := mounts.Get(mountID)
	if err != nil {
		t.Fatal(err)
	}
	h.OnEntity(m)
	h.Finish()

	if got, _ := mounts.Get(mountID); got.State != model.MountDownloading {
		t.Fatalf("mount state after cleanup pass = %s, want Downloading", got.State)
	}
	if err := downloads.onDone(); err != nil {
		t.Fatalf("download callback error = %v", err)
	}
	if got, _ := mounts.Get(mountID); got.State != model.MountOpenInUse {
		t.Errorf("mount state after download = %s, want OpenInUse", got.State)
	}
	if got := getRom(t, env, r.CID).MountCounter; got != 1 {
		t.Errorf("MountCounter = %d, want 1", got)
	}
}

func TestCleanup_LeavesBuckets(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	bucket := getMount(t, env, getUser(t, env, "alice").BucketMountID)

	env.Clock.Advance(365 * 24 * time.Hour)
	newCleanupScanner(env).RunOnce()
	if got := getMount(t, env, bucket.ID); got.State != model.MountBucket {
		t.Errorf("bucket state = %s, want Bucket", got.State)
	}
}

func TestCleanup_ReopenedMountSurvives(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	r := seedRom(t, env, map[string]string{"a": "1"}, model.RomInfo{})
	m := mountRom(t, env, r.CID)
	if err := env.Mounts.EndMount(r.CID); err != nil {
		t.Fatal(err)
	}

	env.Clock.Advance(rom.DefaultMountLifetime + 2*time.Hour)
	h := rom.NewCleanupFactory(env.Mounts, env.Downloads, time.Hour, env.Clock, rom.NopMetrics{}, rom.NewNopLogger())()
	h.Initialize()
	h.OnEntity(getMount(t, env, m.ID))

	// Reopened between the scan and the deletion.
	if err := env.Mounts.BeginMount(r.CID); err != nil {
		t.Fatal(err)
	}
	h.Finish()

	if got := getMount(t, env, m.ID); got.State != model.MountOpenInUse {
		t.Errorf("reopened mount state = %s, want OpenInUse", got.State)
	}
	if _, err := os.Stat(m.Path); err != nil {
		t.Errorf("reopened mount directory removed: %v", err)
	}
}
