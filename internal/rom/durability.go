package rom

import (
	"fmt"
	"time"
)

// DurabilityTier is a storage contract profile offered to users.
type DurabilityTier struct {
	ID          uint64
	Name        string
	Description string
	SponsorLine string

	Nodes                 int
	Tolerance             int
	Duration              time.Duration
	Expiry                time.Duration // how long the network may take to start the contract
	PricePerBytePerSecond uint64
	CollateralPerByte     uint64
	ProofProbability      int
}

// DurabilityOption is the user-facing description of a tier.
type DurabilityOption struct {
	ID          uint64 `json:"id"`
	Name        string `json:"name"`
	PriceLine   string `json:"priceLine"`
	Description string `json:"description"`
	SponsorLine string `json:"sponsorLine"`
}

const (
	sponsorLine       = "Sponsored by Durability-Labs"
	sponsorPricePerTB = 10.0 // USD per TB per month
	bytesPerTB        = 1 << 40
	secondsPerMonth   = 30 * 24 * 60 * 60
	priceQuoteBytes   = 700 << 20
)

// DefaultDurabilityTiers returns the tiers offered when none are configured.
func DefaultDurabilityTiers() []DurabilityTier {
	return []DurabilityTier{
		{
			ID:                    1001,
			Name:                  "D14-HADS",
			Description:           "14-Days high-availability decentralized storage",
			SponsorLine:           sponsorLine,
			Nodes:                 6,
			Tolerance:             3,
			Duration:              14 * 24 * time.Hour,
			Expiry:                30 * time.Minute,
			PricePerBytePerSecond: 1000,
			CollateralPerByte:     1,
			ProofProbability:      244,
		},
		{
			ID:          1002,
			Name:        "D30-HADS",
			Description: "30-Days high-availability decentralized storage",
			SponsorLine: sponsorLine,
			Nodes:       6,
			Tolerance:   3,
			// The network caps contracts at exactly 30 days; stay under it.
			Duration:              time.Duration(29.98 * float64(24*time.Hour)),
			Expiry:                30 * time.Minute,
			PricePerBytePerSecond: 1000,
			CollateralPerByte:     1,
			ProofProbability:      244,
		},
	}
}

// Durability holds the configured tiers.
type Durability struct {
	tiers []DurabilityTier
}

// NewDurability creates a Durability. An empty list uses DefaultDurabilityTiers.
func NewDurability(tiers []DurabilityTier) *Durability {
	if len(tiers) == 0 {
		tiers = DefaultDurabilityTiers()
	}
	return &Durability{tiers: tiers}
}

// Tier looks up a tier by id.
func (d *Durability) Tier(id uint64) (DurabilityTier, error) {
	for _, t := range d.tiers {
		if t.ID == id {
			return t, nil
		}
	}
	return DurabilityTier{}, fmt.Errorf("tier %d: %w", id, ErrUnknownTier)
}

// Options returns the user-facing list of tiers.
func (d *Durability) Options() []DurabilityOption {
	options := make([]DurabilityOption, len(d.tiers))
	for i, t := range d.tiers {
		options[i] = DurabilityOption{
			ID:          t.ID,
			Name:        t.Name,
			PriceLine:   PriceLine(priceQuoteBytes, t.Duration),
			Description: t.Description,
			SponsorLine: t.SponsorLine,
		}
	}
	return options
}

// PriceLine quotes the sponsored price of storing size bytes for d.
func PriceLine(size int64, d time.Duration) string {
	perBytePerSecond := sponsorPricePerTB / bytesPerTB / secondsPerMonth
	price := perBytePerSecond * float64(size) * d.Seconds()
	return fmt.Sprintf("Price: $%.4f (sponsor discount: 100%%)", price)
}
