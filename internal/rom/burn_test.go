package rom_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
	"github.com/durability-labs/ultra-data-burning-rom/internal/testutil"
)

func TestBurnService_Burn(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	before := getUser(t, env, "alice")
	info := model.RomInfo{Title: "Holiday", Author: "Alice", Tags: "photos, beach", Description: "Summer."}

	r := burn(t, env, "alice", map[string]string{"a.jpg": "aaaa", "b.jpg": "bb"}, info)

	if r.Info != info {
		t.Errorf("rom info = %+v, want %+v", r.Info, info)
	}
	if r.MountCounter != 1 || r.CurrentMountID != before.BucketMountID {
		t.Errorf("rom = %+v, want counter 1 on the former bucket", r)
	}
	if !r.StorageExpiresAt.Equal(env.Clock.Now().Add(14 * 24 * time.Hour)) {
		t.Errorf("StorageExpiresAt = %v", r.StorageExpiresAt)
	}
	names := make(map[string]uint64)
	for _, f := range r.Files {
		names[f.Filename] = f.ByteSize
	}
	if names["a.jpg"] != 4 || names["b.jpg"] != 2 {
		t.Errorf("rom files = %+v", r.Files)
	}
	if _, ok := names[rom.InfoFileName]; !ok {
		t.Errorf("rom files %+v missing the info file", r.Files)
	}
	if _, ok := env.Vault.Contract(r.CID); !ok {
		t.Error("no storage contract purchased")
	}

	mount := getMount(t, env, r.CurrentMountID)
	if mount.State != model.MountOpenInUse {
		t.Errorf("former bucket state = %s, want OpenInUse", mount.State)
	}
	var manifest struct {
		Header string        `json:"header"`
		Info   model.RomInfo `json:"info"`
	}
	data := testutil.ReadFile(t, filepath.Join(mount.Path, rom.InfoFileName))
	if err := json.Unmarshal([]byte(data), &manifest); err != nil {
		t.Fatalf("info file is not JSON: %v", err)
	}
	if !strings.Contains(manifest.Header, "UltraDataBurningROM") || manifest.Info != info {
		t.Errorf("info file = %+v", manifest)
	}
	if _, err := os.Stat(env.Mounts.Layout().ZipPath(mount.ID)); err != nil {
		t.Errorf("archive of the burned bucket missing: %v", err)
	}

	user := getUser(t, env, "alice")
	if user.BucketMountID == before.BucketMountID {
		t.Error("user kept the burned bucket")
	}
	if b := getMount(t, env, user.BucketMountID); b.State != model.MountBucket {
		t.Errorf("new bucket state = %s, want Bucket", b.State)
	}
	view, _ := env.Buckets.GetBucket("alice")
	if view.State != model.BurnDone || view.RomCID != r.CID || len(view.Entries) != 0 {
		t.Errorf("bucket view after burn = %+v", view)
	}

	if err := env.Buckets.AcknowledgeBurn("alice"); err != nil {
		t.Fatalf("AcknowledgeBurn() error = %v", err)
	}
	user = getUser(t, env, "alice")
	if user.BurnState != model.BurnOpen || user.NewRomCID != "" {
		t.Errorf("user after acknowledge = %+v", user)
	}
}

func TestBurnService_StartBurnNoOps(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{VolumeSize: 100, MinBurnSize: 4})
	info := rom.BurnInfo{DurabilityOptionID: testTier}

	started, err := env.Buckets.StartBurn("alice", info)
	if err != nil || started {
		t.Errorf("StartBurn() of empty bucket = %v, %v, want false, nil", started, err)
	}

	writeBucket(t, env, "alice", map[string]string{"tiny": "abc"})
	started, err = env.Buckets.StartBurn("alice", info)
	if err != nil || started {
		t.Errorf("StartBurn() under minimum size = %v, %v, want false, nil", started, err)
	}

	started, err = env.Buckets.StartBurn("mallory", info)
	if err != nil || started {
		t.Errorf("StartBurn() of unknown user = %v, %v, want false, nil", started, err)
	}

	writeBucket(t, env, "alice", map[string]string{"more": "abcdef"})
	if _, err := env.Buckets.StartBurn("alice", rom.BurnInfo{DurabilityOptionID: 9}); !errors.Is(err, rom.ErrUnknownTier) {
		t.Errorf("StartBurn() with unknown tier error = %v, want ErrUnknownTier", err)
	}
	if u := getUser(t, env, "alice"); u.BurnState != model.BurnOpen {
		t.Errorf("BurnState = %s after rejected starts, want Open", u.BurnState)
	}
}

func TestBurnService_OverVolume(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{VolumeSize: 10})

	// Files placed behind the service's back still count against the volume.
	bucket := getMount(t, env, getUser(t, env, "alice").BucketMountID)
	testutil.WriteFile(t, bucket.Path, "big", "0123456789abc")

	started, err := env.Buckets.StartBurn("alice", rom.BurnInfo{DurabilityOptionID: testTier})
	if err != nil || started {
		t.Errorf("StartBurn() over volume = %v, %v, want false, nil", started, err)
	}
}

func TestBurnService_InFlight(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	writeBucket(t, env, "alice", map[string]string{"a.txt": "content"})

	release := env.Node.Hold()
	defer release()
	info := rom.BurnInfo{DurabilityOptionID: testTier}
	if started, err := env.Buckets.StartBurn("alice", info); err != nil || !started {
		t.Fatalf("StartBurn() = %v, %v", started, err)
	}

	if started, err := env.Buckets.StartBurn("alice", info); err != nil || started {
		t.Errorf("second StartBurn() = %v, %v, want false, nil", started, err)
	}
	if env.Buckets.IsBucketOpen("alice") {
		t.Error("IsBucketOpen() = true during a burn")
	}
	if err := env.Buckets.WriteFile("alice", "late.txt", strings.NewReader("x")); !errors.Is(err, rom.ErrBucketBusy) {
		t.Errorf("WriteFile() during burn error = %v, want ErrBucketBusy", err)
	}
	if err := env.Buckets.DeleteFile("alice", "a.txt"); !errors.Is(err, rom.ErrBucketBusy) {
		t.Errorf("DeleteFile() during burn error = %v, want ErrBucketBusy", err)
	}
	if err := env.Buckets.AcknowledgeBurn("alice"); err != nil {
		t.Errorf("AcknowledgeBurn() during burn error = %v", err)
	}
	if u := getUser(t, env, "alice"); u.BurnState == model.BurnOpen || u.BurnState == model.BurnDone {
		t.Errorf("BurnState during burn = %s", u.BurnState)
	}

	release()
	env.Burns.Wait()
	if u := getUser(t, env, "alice"); u.BurnState != model.BurnDone {
		t.Errorf("BurnState after burn = %s, want Done", u.BurnState)
	}
}

func TestBurnService_Rollback(t *testing.T) {
	tests := []struct {
		name   string
		inject func(t *testing.T, env *testutil.Env, bucket model.Mount)
	}{
		{
			name: "info file cannot be written",
			inject: func(t *testing.T, env *testutil.Env, bucket model.Mount) {
				if err := os.Mkdir(env.Mounts.Layout().InfoFilePath(bucket), 0755); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "archive cannot be created",
			inject: func(t *testing.T, env *testutil.Env, bucket model.Mount) {
				if err := os.Mkdir(env.Mounts.Layout().ZipPath(bucket.ID), 0755); err != nil {
					t.Fatal(err)
				}
			},
		},
		{
			name: "upload fails",
			inject: func(_ *testing.T, env *testutil.Env, _ model.Mount) {
				env.Node.FailUploads(errors.New("upload refused"))
			},
		},
		{
			name: "purchase fails",
			inject: func(_ *testing.T, env *testutil.Env, _ model.Mount) {
				env.Node.FailPurchases(errors.New("no storage"))
			},
		},
		{
			name: "empty cid",
			inject: func(_ *testing.T, env *testutil.Env, _ model.Mount) {
				env.Node.OverridePurchaseCID("")
			},
		},
		{
			name: "next bucket cannot be created",
			inject: func(t *testing.T, env *testutil.Env, _ model.Mount) {
				blockNewMounts(t, env)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := testutil.NewEnv(t, testutil.EnvConfig{})
			before := getUser(t, env, "alice")
			writeBucket(t, env, "alice", map[string]string{"keep.txt": "precious"})
			tt.inject(t, env, getMount(t, env, before.BucketMountID))

			started, err := env.Buckets.StartBurn("alice", rom.BurnInfo{DurabilityOptionID: testTier})
			if err != nil || !started {
				t.Fatalf("StartBurn() = %v, %v", started, err)
			}
			env.Burns.Wait()

			user := getUser(t, env, "alice")
			if user.BurnState != model.BurnOpen || user.NewRomCID != "" {
				t.Errorf("user after failed burn = %+v, want Open", user)
			}
			if user.BucketMountID != before.BucketMountID {
				t.Error("failed burn replaced the bucket")
			}
			bucket := getMount(t, env, user.BucketMountID)
			if bucket.State != model.MountBucket {
				t.Errorf("bucket state = %s, want Bucket", bucket.State)
			}
			if got := testutil.ReadFile(t, filepath.Join(bucket.Path, "keep.txt")); got != "precious" {
				t.Errorf("bucket file = %q after rollback", got)
			}
			layout := env.Mounts.Layout()
			for _, path := range []string{layout.InfoFilePath(bucket), layout.ZipPath(bucket.ID), layout.SealedPath(bucket.ID)} {
				if _, err := os.Stat(path); !os.IsNotExist(err) {
					t.Errorf("burn artifact %s left behind", path)
				}
			}
			view, _ := env.Buckets.GetBucket("alice")
			if len(view.Entries) != 1 || view.Entries[0].Filename != "keep.txt" {
				t.Errorf("bucket entries after rollback = %+v", view.Entries)
			}
			if env.Pool.Available() != 1 {
				t.Error("node not returned to the pool")
			}
			roms := 0
			if err := rom.Iterate(env.Store, func(model.Rom) { roms++ }); err != nil {
				t.Fatal(err)
			}
			if roms != 0 {
				t.Errorf("failed burn left %d roms", roms)
			}
		})
	}
}

// blockNewMounts puts plain files where the next stub mount ids would get
// their directories.
func blockNewMounts(t *testing.T, env *testutil.Env) {
	t.Helper()
	layout := env.Mounts.Layout()
	for i := 1; i <= 20; i++ {
		path := layout.MountPath(fmt.Sprintf("mount-%d", i))
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestBurnService_RollbackRestoresExistingRom(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	env.Node.OverridePurchaseCID("same-cid")
	first := burn(t, env, "alice", map[string]string{"a": "1"}, model.RomInfo{Title: "first"})

	before := getUser(t, env, "bob")
	writeBucket(t, env, "bob", map[string]string{"b": "2"})
	blockNewMounts(t, env)
	if started, err := env.Buckets.StartBurn("bob", rom.BurnInfo{DurabilityOptionID: testTier}); err != nil || !started {
		t.Fatalf("StartBurn() = %v, %v", started, err)
	}
	env.Burns.Wait()

	got := getRom(t, env, first.CID)
	if got.MountCounter != first.MountCounter || got.CurrentMountID != first.CurrentMountID {
		t.Errorf("rom after failed burn = %+v, want %+v", got, first)
	}
	if m := getMount(t, env, before.BucketMountID); m.State != model.MountBucket {
		t.Errorf("bob's bucket state = %s, want Bucket", m.State)
	}
	if u := getUser(t, env, "bob"); u.BurnState != model.BurnOpen || u.BucketMountID != before.BucketMountID {
		t.Errorf("bob after failed burn = %+v", u)
	}
}

func TestBurnService_DuplicateContent(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	env.Node.OverridePurchaseCID("same-cid")

	first := burn(t, env, "alice", map[string]string{"a": "1"}, model.RomInfo{Title: "first"})
	second := burn(t, env, "bob", map[string]string{"b": "2"}, model.RomInfo{Title: "second"})

	if second.CID != first.CID {
		t.Fatalf("cids differ: %s, %s", first.CID, second.CID)
	}
	if second.Info.Title != "first" {
		t.Errorf("existing rom info overwritten: %+v", second.Info)
	}
	if second.MountCounter != 2 {
		t.Errorf("MountCounter = %d, want 2", second.MountCounter)
	}
	if second.CurrentMountID == first.CurrentMountID {
		t.Error("CurrentMountID not moved to the latest burned mount")
	}
}

func TestBurnService_ExtendRom(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	r := burn(t, env, "alice", map[string]string{"a": "1"}, model.RomInfo{})
	expiry := r.StorageExpiresAt

	if _, err := env.Burns.ExtendRom("missing", testTier); !errors.Is(err, rom.ErrNotFound) {
		t.Errorf("ExtendRom(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := env.Burns.ExtendRom(r.CID, 9); !errors.Is(err, rom.ErrUnknownTier) {
		t.Errorf("ExtendRom() with unknown tier error = %v, want ErrUnknownTier", err)
	}
	if ok, err := env.Burns.ExtendRom(r.CID, testTier); err != nil || ok {
		t.Errorf("ExtendRom() outside window = %v, %v, want false", ok, err)
	}

	env.Clock.Set(expiry.Add(-24 * time.Hour))
	ok, err := env.Burns.ExtendRom(r.CID, testTier)
	if err != nil || !ok {
		t.Fatalf("ExtendRom() inside window = %v, %v, want true", ok, err)
	}
	env.Burns.Wait()
	want := env.Clock.Now().Add(14 * 24 * time.Hour)
	if got := getRom(t, env, r.CID).StorageExpiresAt; !got.Equal(want) {
		t.Errorf("StorageExpiresAt = %v, want %v", got, want)
	}

	env.Clock.Set(want.Add(time.Minute))
	if ok, err := env.Burns.ExtendRom(r.CID, testTier); err != nil || ok {
		t.Errorf("ExtendRom() after expiry = %v, %v, want false", ok, err)
	}
}

func TestBurnService_ExtendRomFailureKeepsExpiry(t *testing.T) {
	t.Parallel()
	env := testutil.NewEnv(t, testutil.EnvConfig{})
	r := burn(t, env, "alice", map[string]string{"a": "1"}, model.RomInfo{})
	env.Node.FailPurchases(errors.New("market closed"))

	env.Clock.Set(r.StorageExpiresAt.Add(-time.Hour))
	if ok, err := env.Burns.ExtendRom(r.CID, testTier); err != nil || !ok {
		t.Fatalf("ExtendRom() = %v, %v", ok, err)
	}
	env.Burns.Wait()
	if got := getRom(t, env, r.CID).StorageExpiresAt; !got.Equal(r.StorageExpiresAt) {
		t.Errorf("StorageExpiresAt changed to %v after a failed renewal", got)
	}

	// The failed renewal no longer blocks a retry.
	env.Node.FailPurchases(nil)
	if ok, _ := env.Burns.ExtendRom(r.CID, testTier); !ok {
		t.Error("ExtendRom() retry = false")
	}
}
