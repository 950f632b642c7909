package testutil

import (
	"context"
	"sync"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
	"github.com/durability-labs/ultra-data-burning-rom/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault(clock rom.Clock) *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault", clock)
}

// FaultyVault wraps a vault and fails or blocks selected operations on
// demand. The zero value of each field passes calls through.
type FaultyVault struct {
	rom.Vault

	mu          sync.Mutex
	uploadErr   error
	purchaseErr error
	downloadErr error
	purchaseCID *string
	gate        chan struct{}
	uploads     int
	purchases   int
	downloads   int
}

var _ rom.Vault = (*FaultyVault)(nil)

// NewFaultyVault wraps v.
func NewFaultyVault(v rom.Vault) *FaultyVault {
	return &FaultyVault{Vault: v}
}

// FailUploads makes every Upload return err. A nil err restores uploads.
func (f *FaultyVault) FailUploads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadErr = err
}

// FailPurchases makes every PurchaseStorage return err.
func (f *FaultyVault) FailPurchases(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchaseErr = err
}

// FailDownloads makes every Download return err.
func (f *FaultyVault) FailDownloads(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadErr = err
}

// OverridePurchaseCID makes successful purchases report cid.
func (f *FaultyVault) OverridePurchaseCID(cid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchaseCID = &cid
}

// Hold makes Upload and Download block until the returned release func is
// called. Failures are evaluated after the hold is released.
func (f *FaultyVault) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Counts returns the number of Upload, PurchaseStorage and Download calls.
func (f *FaultyVault) Counts() (uploads, purchases, downloads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads, f.purchases, f.downloads
}

func (f *FaultyVault) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *FaultyVault) Upload(ctx context.Context, path string) (string, error) {
	f.mu.Lock()
	f.uploads++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	err := f.uploadErr
	f.mu.Unlock()
	if err != nil {
		return "", err
	}
	return f.Vault.Upload(ctx, path)
}

func (f *FaultyVault) Download(ctx context.Context, cid string, path string) error {
	f.mu.Lock()
	f.downloads++
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	err := f.downloadErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Vault.Download(ctx, cid, path)
}

func (f *FaultyVault) PurchaseStorage(ctx context.Context, cid string, tier rom.DurabilityTier) (rom.Purchase, error) {
	f.mu.Lock()
	f.purchases++
	err := f.purchaseErr
	override := f.purchaseCID
	f.mu.Unlock()
	if err != nil {
		return rom.Purchase{}, err
	}
	p, err := f.Vault.PurchaseStorage(ctx, cid, tier)
	if err != nil {
		return rom.Purchase{}, err
	}
	if override != nil {
		p.CID = *override
	}
	return p, nil
}
