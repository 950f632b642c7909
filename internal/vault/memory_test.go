package vault

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.zip")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMemoryVault_UploadDownload(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault("mem", fixedClock{testNow})

	cid, err := v.Upload(ctx, writeTempFile(t, "hello world"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(cid) != 64 {
		t.Errorf("Upload() cid = %q, want a SHA-256 hex digest", cid)
	}

	again, err := v.Upload(ctx, writeTempFile(t, "hello world"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if again != cid || v.Len() != 1 {
		t.Errorf("Upload() of identical content = %q (len %d), want %q (len 1)", again, v.Len(), cid)
	}

	dst := filepath.Join(t.TempDir(), "out.zip")
	if err := v.Download(ctx, cid, dst); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "hello world" {
		t.Errorf("Download() content = %q, want %q", got, "hello world")
	}

	if err := v.Download(ctx, "missing", dst); err == nil {
		t.Error("Download() of unknown cid expected error")
	}
}

func TestMemoryVault_PurchaseStorage(t *testing.T) {
	ctx := context.Background()
	v := NewMemoryVault("mem", fixedClock{testNow})
	tier := rom.DefaultDurabilityTiers()[0]

	if _, err := v.PurchaseStorage(ctx, "missing", tier); err == nil {
		t.Error("PurchaseStorage() of unknown cid expected error")
	}

	cid, err := v.Upload(ctx, writeTempFile(t, "rom"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	p, err := v.PurchaseStorage(ctx, cid, tier)
	if err != nil {
		t.Fatalf("PurchaseStorage() error = %v", err)
	}
	if p.CID != cid {
		t.Errorf("Purchase.CID = %q, want %q", p.CID, cid)
	}
	if want := testNow.Add(tier.Duration); !p.ExpiresAt.Equal(want) {
		t.Errorf("Purchase.ExpiresAt = %v, want %v", p.ExpiresAt, want)
	}
	if _, ok := v.Contract(cid); !ok {
		t.Error("Contract() not recorded after purchase")
	}
}
