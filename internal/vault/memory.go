package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// MemoryVault keeps uploaded content and storage contracts in memory. Content
// ids are SHA-256 digests. It is safe for concurrent use.
type MemoryVault struct {
	name  string
	clock rom.Clock

	mu        sync.RWMutex
	content   map[string][]byte
	contracts map[string]rom.Purchase
}

var _ rom.Vault = (*MemoryVault)(nil)

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault(name string, clock rom.Clock) *MemoryVault {
	if clock == nil {
		clock = rom.RealClock{}
	}
	return &MemoryVault{
		name:      name,
		clock:     clock,
		content:   make(map[string][]byte),
		contracts: make(map[string]rom.Purchase),
	}
}

func (m *MemoryVault) Name() string { return m.name }

func (m *MemoryVault) Upload(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	cid := hex.EncodeToString(sum[:])

	m.mu.Lock()
	defer m.mu.Unlock()
	m.content[cid] = data
	return cid, nil
}

func (m *MemoryVault) Download(ctx context.Context, cid string, path string) error {
	m.mu.RLock()
	data, ok := m.content[cid]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("content not found: %s", cid)
	}
	return os.WriteFile(path, data, 0644)
}

func (m *MemoryVault) PurchaseStorage(ctx context.Context, cid string, tier rom.DurabilityTier) (rom.Purchase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.content[cid]; !ok {
		return rom.Purchase{}, fmt.Errorf("content not found: %s", cid)
	}
	p := rom.Purchase{CID: cid, ExpiresAt: m.clock.Now().Add(tier.Duration)}
	m.contracts[cid] = p
	return p, nil
}

func (m *MemoryVault) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Contract returns the active storage contract for cid, if any.
func (m *MemoryVault) Contract(cid string) (rom.Purchase, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.contracts[cid]
	return p, ok
}

// Len returns the number of stored content items.
func (m *MemoryVault) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.content)
}
