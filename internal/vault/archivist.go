package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

const (
	archivistAPIPath        = "/api/archivist/v1/"
	archivistUploadName     = "UltraDataBurningRom_archive.zip"
	archivistPollInterval   = 10 * time.Second
	archivistStartSlack     = 10 * time.Second
	archivistDefaultTimeout = 10 * time.Minute
)

// Purchase states reported by an archivist node.
const (
	purchaseStarted   = "started"
	purchaseFinished  = "finished"
	purchaseErrored   = "errored"
	purchaseCancelled = "cancelled"
	purchaseFailed    = "failed"
)

// ArchivistVault is a client for an archivist storage node's REST API.
type ArchivistVault struct {
	name         string
	baseURL      string
	client       *http.Client
	clock        rom.Clock
	pollInterval time.Duration
}

var _ rom.Vault = (*ArchivistVault)(nil)

// NewArchivistVault creates a client for the node at url. Requests time out
// after timeout; a non-positive timeout uses a default.
func NewArchivistVault(name, url string, timeout time.Duration, clock rom.Clock) *ArchivistVault {
	if clock == nil {
		clock = rom.RealClock{}
	}
	if timeout <= 0 {
		timeout = archivistDefaultTimeout
	}
	return &ArchivistVault{
		name:         name,
		baseURL:      strings.TrimSuffix(url, "/") + archivistAPIPath,
		client:       &http.Client{Timeout: timeout},
		clock:        clock,
		pollInterval: archivistPollInterval,
	}
}

func (v *ArchivistVault) Name() string { return v.name }

func (v *ArchivistVault) Ping(ctx context.Context) error {
	resp, err := v.do(ctx, http.MethodGet, "debug/info", "", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (v *ArchivistVault) Upload(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"data", f)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archivistUploadName))
	if info, err := f.Stat(); err == nil {
		req.ContentLength = info.Size()
	}

	resp, err := v.send(req)
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading upload response: %w", err)
	}
	cid := strings.TrimSpace(string(body))
	if cid == "" {
		return "", errors.New("upload returned an empty content id")
	}
	return cid, nil
}

func (v *ArchivistVault) Download(ctx context.Context, cid string, path string) error {
	resp, err := v.do(ctx, http.MethodGet, "data/"+cid+"/network/stream", "", nil)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", cid, err)
	}
	defer resp.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("downloading %s: %w", cid, err)
	}
	return f.Close()
}

type storageRequest struct {
	Duration              int64  `json:"duration"`
	PricePerBytePerSecond string `json:"pricePerBytePerSecond"`
	ProofProbability      string `json:"proofProbability"`
	Nodes                 int    `json:"nodes"`
	Tolerance             int    `json:"tolerance"`
	CollateralPerByte     string `json:"collateralPerByte"`
	Expiry                int64  `json:"expiry"`
}

type purchaseInfo struct {
	State   string `json:"state"`
	Error   string `json:"error"`
	Request struct {
		Content struct {
			CID string `json:"cid"`
		} `json:"content"`
	} `json:"request"`
}

// PurchaseStorage creates a storage request and polls it until it starts.
// It gives up once the request's expiry has passed.
func (v *ArchivistVault) PurchaseStorage(ctx context.Context, cid string, tier rom.DurabilityTier) (rom.Purchase, error) {
	body, err := json.Marshal(storageRequest{
		Duration:              int64(tier.Duration.Seconds()),
		PricePerBytePerSecond: strconv.FormatUint(tier.PricePerBytePerSecond, 10),
		ProofProbability:      strconv.Itoa(tier.ProofProbability),
		Nodes:                 tier.Nodes,
		Tolerance:             tier.Tolerance,
		CollateralPerByte:     strconv.FormatUint(tier.CollateralPerByte, 10),
		Expiry:                int64(tier.Expiry.Seconds()),
	})
	if err != nil {
		return rom.Purchase{}, err
	}

	resp, err := v.do(ctx, http.MethodPost, "storage/request/"+cid, "application/json", bytes.NewReader(body))
	if err != nil {
		return rom.Purchase{}, fmt.Errorf("creating storage request for %s: %w", cid, err)
	}
	idBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return rom.Purchase{}, fmt.Errorf("reading storage request response: %w", err)
	}
	purchaseID := strings.TrimSpace(string(idBytes))

	info, err := v.waitForStarted(ctx, purchaseID, tier.Expiry+archivistStartSlack)
	if err != nil {
		return rom.Purchase{}, fmt.Errorf("purchase %s: %w", purchaseID, err)
	}

	finalCID := info.Request.Content.CID
	if finalCID == "" {
		finalCID = cid
	}
	return rom.Purchase{CID: finalCID, ExpiresAt: v.clock.Now().Add(tier.Duration)}, nil
}

func (v *ArchivistVault) waitForStarted(ctx context.Context, purchaseID string, limit time.Duration) (purchaseInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	var info purchaseInfo
	op := func() error {
		p, err := v.purchase(ctx, purchaseID)
		if err != nil {
			return err
		}
		switch p.State {
		case purchaseStarted:
			info = p
			return nil
		case purchaseErrored, purchaseCancelled, purchaseFailed:
			return backoff.Permanent(fmt.Errorf("purchase %s: %s", p.State, p.Error))
		case purchaseFinished:
			return backoff.Permanent(errors.New("purchase finished without being started"))
		default:
			return fmt.Errorf("purchase is %s", p.State)
		}
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(v.pollInterval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return purchaseInfo{}, err
	}
	return info, nil
}

func (v *ArchivistVault) purchase(ctx context.Context, purchaseID string) (purchaseInfo, error) {
	resp, err := v.do(ctx, http.MethodGet, "storage/purchases/"+purchaseID, "", nil)
	if err != nil {
		return purchaseInfo{}, err
	}
	defer resp.Body.Close()

	var p purchaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return purchaseInfo{}, fmt.Errorf("decoding purchase: %w", err)
	}
	return p, nil
}

func (v *ArchivistVault) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, v.baseURL+endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return v.send(req)
}

// send performs the request and turns non-2xx responses into errors.
func (v *ArchivistVault) send(req *http.Request) (*http.Response, error) {
	resp, err := v.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}
