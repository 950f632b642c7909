package rom_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/archive"
	"github.com/durability-labs/ultra-data-burning-rom/internal/model"
	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
	"github.com/durability-labs/ultra-data-burning-rom/internal/testutil"
)

const testTier = 1001

// seedRom uploads an archive of files to the env's vault and records a ROM
// for it that has never been mounted.
func seedRom(t *testing.T, env *testutil.Env, files map[string]string, info model.RomInfo) model.Rom {
	t.Helper()

	dir := t.TempDir()
	var entries []model.FileEntry
	for name, content := range files {
		testutil.WriteFile(t, dir, name, content)
		entries = append(entries, model.FileEntry{Filename: name, ByteSize: uint64(len(content))})
	}
	zipPath := filepath.Join(t.TempDir(), "seed.zip")
	if err := archive.CreateFromDirectory(dir, zipPath); err != nil {
		t.Fatalf("CreateFromDirectory() error = %v", err)
	}
	cid, err := env.Vault.Upload(context.Background(), zipPath)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	r := model.Rom{
		CID:              cid,
		Info:             info,
		Files:            entries,
		StorageExpiresAt: env.Clock.Now().Add(14 * 24 * time.Hour),
	}
	if err := rom.Save(env.Store, r); err != nil {
		t.Fatalf("saving rom: %v", err)
	}
	return r
}

func getRom(t *testing.T, env *testutil.Env, cid string) model.Rom {
	t.Helper()
	r, ok := rom.Get[model.Rom](env.Store, cid)
	if !ok {
		t.Fatalf("rom %s not found", cid)
	}
	return r
}

func getMount(t *testing.T, env *testutil.Env, id string) model.Mount {
	t.Helper()
	m, err := env.Mounts.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return m
}

func getUser(t *testing.T, env *testutil.Env, username string) model.User {
	t.Helper()
	u, err := env.Users.GetUser(username)
	if err != nil {
		t.Fatalf("GetUser(%s) error = %v", username, err)
	}
	return u
}

func writeBucket(t *testing.T, env *testutil.Env, username string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := env.Buckets.WriteFile(username, name, strings.NewReader(content)); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
}

// burn writes files into the user's bucket, burns it to completion and
// returns the new ROM.
func burn(t *testing.T, env *testutil.Env, username string, files map[string]string, info model.RomInfo) model.Rom {
	t.Helper()
	writeBucket(t, env, username, files)
	started, err := env.Buckets.StartBurn(username, rom.BurnInfo{Fields: info, DurabilityOptionID: testTier})
	if err != nil || !started {
		t.Fatalf("StartBurn() = %v, %v, want true, nil", started, err)
	}
	env.Burns.Wait()

	user := getUser(t, env, username)
	if user.BurnState != model.BurnDone {
		t.Fatalf("BurnState after burn = %s, want Done", user.BurnState)
	}
	return getRom(t, env, user.NewRomCID)
}

// mountRom begins a mount and waits for the download to finish.
func mountRom(t *testing.T, env *testutil.Env, cid string) model.Mount {
	t.Helper()
	if err := env.Mounts.BeginMount(cid); err != nil {
		t.Fatalf("BeginMount() error = %v", err)
	}
	env.Downloads.Wait()
	return getMount(t, env, getRom(t, env, cid).CurrentMountID)
}
