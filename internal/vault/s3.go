package vault

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/durability-labs/ultra-data-burning-rom/internal/rom"
)

// S3Config holds configuration for an S3 storage node.
// Works with AWS S3 and S3-compatible services such as MinIO.
type S3Config struct {
	Name      string
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional: custom endpoint, uses path-style addressing
	AccessKey string
	SecretKey string
	Timeout   time.Duration
}

// S3Vault stores archives as objects under <prefix>/content/<cid> and
// storage contracts under <prefix>/contracts/<cid>.json. Content ids are
// SHA-256 digests.
type S3Vault struct {
	name       string
	bucket     string
	prefix     string
	timeout    time.Duration
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	clock      rom.Clock
}

var _ rom.Vault = (*S3Vault)(nil)

// NewS3Vault creates an S3 vault. Credentials come from the config if set,
// otherwise from the default AWS credential chain.
func NewS3Vault(ctx context.Context, cfg S3Config, clock rom.Clock) (*S3Vault, error) {
	if clock == nil {
		clock = rom.RealClock{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Vault{
		name:       cfg.Name,
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		timeout:    cfg.Timeout,
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		clock:      clock,
	}, nil
}

func (v *S3Vault) Name() string { return v.name }

func (v *S3Vault) Upload(ctx context.Context, filePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", filePath, err)
	}
	cid := hex.EncodeToString(h.Sum(nil))
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(v.contentKey(cid)),
		Body:        f,
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return cid, nil
}

func (v *S3Vault) Download(ctx context.Context, cid string, filePath string) error {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filePath, err)
	}
	_, err = v.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.contentKey(cid)),
	})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(filePath)
		return fmt.Errorf("failed to download from S3: %w", err)
	}
	return nil
}

func (v *S3Vault) PurchaseStorage(ctx context.Context, cid string, tier rom.DurabilityTier) (rom.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if _, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.contentKey(cid)),
	}); err != nil {
		return rom.Purchase{}, fmt.Errorf("content %s not found: %w", cid, err)
	}

	c := contract{
		CID:       cid,
		Tier:      tier.Name,
		Nodes:     tier.Nodes,
		Tolerance: tier.Tolerance,
		ExpiresAt: v.clock.Now().Add(tier.Duration),
	}
	data, err := json.Marshal(c)
	if err != nil {
		return rom.Purchase{}, err
	}
	if _, err := v.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(v.bucket),
		Key:         aws.String(v.contractKey(cid)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return rom.Purchase{}, fmt.Errorf("failed to write contract: %w", err)
	}
	return rom.Purchase{CID: cid, ExpiresAt: c.ExpiresAt}, nil
}

// Ping checks that the bucket exists and is accessible.
func (v *S3Vault) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("bucket %q not accessible: %w", v.bucket, err)
	}
	return nil
}

func (v *S3Vault) contentKey(cid string) string {
	return path.Join(v.prefix, "content", cid)
}

func (v *S3Vault) contractKey(cid string) string {
	return path.Join(v.prefix, "contracts", cid+".json")
}
