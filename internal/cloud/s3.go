package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"golang.org/x/sync/errgroup"
)

// S3Config configures the S3 replica.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // For S3-compatible services (MinIO, R2, ...)
	// Static credentials. Leave empty to use the default AWS credential
	// chain (environment, shared config, instance role).
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
	// Concurrency bounds parallel object writes within one batch.
	Concurrency int
}

// S3 is a replica that stores each document as a JSON object.
//
// A batch is not atomic: documents are written concurrently and the first
// failure is returned. Re-uploading a batch is safe because object keys are
// derived from the natural key.
type S3 struct {
	client *s3.Client
	cfg    S3Config
	now    func() time.Time
}

// OpenS3 creates an S3 replica client.
func OpenS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &S3{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

func (r *S3) userKey(userID string) string {
	return r.cfg.Prefix + "users/" + userID + ".json"
}

func (r *S3) readingsPrefix(userID string) string {
	return r.cfg.Prefix + "users/" + userID + "/readings/"
}

func (r *S3) readingKey(userID, docID string) string {
	return r.readingsPrefix(userID) + docID + ".json"
}

// GetUser implements Replica.GetUser.
func (r *S3) GetUser(ctx context.Context, userID string) (*UserDoc, error) {
	var doc UserDoc
	if err := r.getJSON(ctx, r.userKey(userID), &doc); err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}
	return &doc, nil
}

// PutUser implements Replica.PutUser. An empty email keeps the stored one.
func (r *S3) PutUser(ctx context.Context, doc UserDoc) error {
	if doc.Email == "" {
		if prev, err := r.GetUser(ctx, doc.UserID); err == nil {
			doc.Email = prev.Email
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	doc.LastSync = r.now().UTC()

	if err := r.putJSON(ctx, r.userKey(doc.UserID), doc, false); err != nil {
		return fmt.Errorf("failed to put user %s: %w", doc.UserID, err)
	}
	return nil
}

// CommitBatch implements Replica.CommitBatch.
//
// New documents are created with a conditional write. When the object
// already exists its createdAt is read back and kept.
func (r *S3) CommitBatch(ctx context.Context, userID string, docs []Document) error {
	if len(docs) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	now := r.now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, doc := range docs {
		g.Go(func() error {
			return r.writeDoc(gctx, userID, doc, now)
		})
	}
	return g.Wait()
}

func (r *S3) writeDoc(ctx context.Context, userID string, doc Document, now time.Time) error {
	key := r.readingKey(userID, doc.ID)
	doc.CreatedAt = now
	doc.UpdatedAt = now

	err := r.putJSON(ctx, key, doc, true)
	if err == nil {
		return nil
	}
	if !isPreconditionFailed(err) {
		return fmt.Errorf("failed to write %s: %w", doc.ID, err)
	}

	var prev Document
	if err := r.getJSON(ctx, key, &prev); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to read %s: %w", doc.ID, err)
	}
	if !prev.CreatedAt.IsZero() {
		doc.CreatedAt = prev.CreatedAt
	}

	if err := r.putJSON(ctx, key, doc, false); err != nil {
		return fmt.Errorf("failed to overwrite %s: %w", doc.ID, err)
	}
	return nil
}

// ListReadings implements Replica.ListReadings.
func (r *S3) ListReadings(ctx context.Context, userID string) ([]Document, error) {
	prefix := r.readingsPrefix(userID)

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list readings: %w", mapS3Err(err))
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	docs := make([]Document, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, key := range keys {
		g.Go(func() error {
			var doc Document
			if err := r.getJSON(gctx, key, &doc); err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			doc.ID = strings.TrimSuffix(path.Base(key), ".json")
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// Close implements Replica.Close.
func (r *S3) Close() error {
	return nil
}

func (r *S3) getJSON(ctx context.Context, key string, v any) error {
	resp, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return mapS3Err(err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("S3 read body failed: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (r *S3) putJSON(ctx context.Context, key string, v any, ifAbsent bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if ifAbsent {
		input.IfNoneMatch = aws.String("*")
	}

	if _, err := r.client.PutObject(ctx, input); err != nil {
		return mapS3Err(err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return false
}

// mapS3Err translates S3 error codes into the replica error taxonomy.
func mapS3Err(err error) error {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
	}
	return err
}
