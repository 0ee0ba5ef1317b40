package accounts

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/multiplycharity/multiply-monorepo/internal/server/models"
	"github.com/sethvargo/go-retry"
)

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// ObjectAPI is the part of *s3.Client the repository uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config is what NewS3Client needs to reach an S3-compatible endpoint.
type S3Config struct {
	User     string
	Password string
	Region   string
	Endpoint string
}

// NewS3Client builds a path-style client with static credentials, which is
// what MinIO expects.
func NewS3Client(ctx context.Context, c S3Config) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.User, c.Password, "")),
	)
	if err != nil {
		return nil, err
	}
	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.Endpoint)
		o.UsePathStyle = true
	}), nil
}

// S3Repository stores one JSON object per account under a key derived from
// the identity, plus a small pointer object per account id. Uniqueness and
// updates rely on conditional writes (If-None-Match / If-Match).
type S3Repository struct {
	client  ObjectAPI
	bucket  string
	prefix  string
	backoff func() retry.Backoff
	now     func() time.Time
}

func NewS3Repository(client ObjectAPI, bucket string) *S3Repository {
	return &S3Repository{
		client: client,
		bucket: bucket,
		prefix: "accounts/",
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(4, retry.NewExponential(20*time.Millisecond))
		},
		now: time.Now,
	}
}

type s3Account struct {
	ID           string            `json:"id"`
	Identity     string            `json:"identity"`
	PasswordHash []byte            `json:"passwordHash"`
	Address      string            `json:"address"`
	Envelope     cryptox.Envelope  `json:"envelope"`
	KDF          cryptox.KDFParams `json:"kdf"`
	SessionKey   []byte            `json:"sessionKey"`
	Version      int64             `json:"version"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

func toS3(a *models.Account) *s3Account {
	return &s3Account{
		ID: a.ID, Identity: a.Identity, PasswordHash: a.PasswordHash, Address: a.Address,
		Envelope: a.Envelope, KDF: a.KDF, SessionKey: a.SessionKey, Version: a.Version,
		CreatedAt: a.CreatedAt, UpdatedAt: a.UpdatedAt,
	}
}

func (s *s3Account) model() *models.Account {
	return &models.Account{
		ID: s.ID, Identity: s.Identity, PasswordHash: s.PasswordHash, Address: s.Address,
		Envelope: s.Envelope, KDF: s.KDF, SessionKey: s.SessionKey, Version: s.Version,
		CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt,
	}
}

// identityKey hashes the identity so object names do not expose e-mail
// addresses in bucket listings.
func (r *S3Repository) identityKey(identity string) string {
	sum := sha256.Sum256([]byte(identity))
	return r.prefix + "by-identity/" + hex.EncodeToString(sum[:]) + ".json"
}

func (r *S3Repository) idKey(id string) string {
	return r.prefix + "by-id/" + id
}

func (r *S3Repository) Create(ctx context.Context, a *models.Account) (*models.Account, error) {
	stored := a.Clone()
	stored.ID = uuid.NewString()
	stored.Version = 1
	stored.CreatedAt = r.now().UTC()
	stored.UpdatedAt = stored.CreatedAt

	body, err := json.Marshal(toS3(stored))
	if err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}

	// The id pointer goes first. If the identity write then fails, the
	// pointer is left behind unreferenced and GetByID rejects it, while the
	// identity stays free for the next attempt.
	key := r.identityKey(stored.Identity)
	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(r.idKey(stored.ID)),
		Body:        bytes.NewReader([]byte(key)),
		ContentType: aws.String("text/plain"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 error: %w", err)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return nil, common.ErrAccountExists
		}
		return nil, fmt.Errorf("s3 error: %w", err)
	}
	return stored, nil
}

func (r *S3Repository) GetByIdentity(ctx context.Context, identity string) (*models.Account, error) {
	a, _, err := r.load(ctx, r.identityKey(identity))
	return a, err
}

func (r *S3Repository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	key, err := r.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	a, _, err := r.loadID(ctx, key, id)
	return a, err
}

func (r *S3Repository) UpdateSessionKey(ctx context.Context, id string, key []byte) error {
	return r.update(ctx, id, func(a *models.Account) {
		a.SessionKey = append([]byte(nil), key...)
	})
}

func (r *S3Repository) UpdateAddress(ctx context.Context, id string, address string) error {
	return r.update(ctx, id, func(a *models.Account) { a.Address = address })
}

// update is a read-modify-write guarded by the object's ETag. A concurrent
// writer makes the conditional put fail and the whole cycle is retried.
func (r *S3Repository) update(ctx context.Context, id string, fn func(*models.Account)) error {
	key, err := r.resolveID(ctx, id)
	if err != nil {
		return err
	}

	return retry.Do(ctx, r.backoff(), func(ctx context.Context) error {
		a, etag, err := r.loadID(ctx, key, id)
		if err != nil {
			return err
		}
		fn(a)
		a.Version++
		a.UpdatedAt = r.now().UTC()

		body, err := json.Marshal(toS3(a))
		if err != nil {
			return fmt.Errorf("encode account: %w", err)
		}
		_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(r.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
			IfMatch:     aws.String(etag),
		})
		if err != nil {
			if isPreconditionFailed(err) {
				return retry.RetryableError(common.ErrUnavailable)
			}
			return fmt.Errorf("s3 error: %w", err)
		}
		return nil
	})
}

func (r *S3Repository) resolveID(ctx context.Context, id string) (string, error) {
	body, _, err := r.read(ctx, r.idKey(id))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// loadID loads the account a by-id pointer refers to. Pointers left by a
// failed Create name an identity object owned by another id, or none.
func (r *S3Repository) loadID(ctx context.Context, key, id string) (*models.Account, string, error) {
	a, etag, err := r.load(ctx, key)
	if err != nil {
		return nil, "", err
	}
	if a.ID != id {
		return nil, "", common.ErrorNotFound
	}
	return a, etag, nil
}

func (r *S3Repository) load(ctx context.Context, key string) (*models.Account, string, error) {
	body, etag, err := r.read(ctx, key)
	if err != nil {
		return nil, "", err
	}
	var s s3Account
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, "", fmt.Errorf("s3 error: decode %s: %w", key, err)
	}
	return s.model(), etag, nil
}

func (r *S3Repository) read(ctx context.Context, key string) ([]byte, string, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, "", common.ErrorNotFound
		}
		return nil, "", fmt.Errorf("s3 error: %w", err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("s3 error: read %s: %w", key, err)
	}
	return body, aws.ToString(out.ETag), nil
}

func isPreconditionFailed(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "PreconditionFailed", "ConditionalRequestConflict":
		return true
	}
	return false
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && (ae.ErrorCode() == "NoSuchKey" || ae.ErrorCode() == "NotFound")
}
