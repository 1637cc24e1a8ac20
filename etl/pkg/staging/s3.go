package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/arborlabs/shopetl/etl/pkg/table"
	"github.com/arborlabs/shopetl/utils/pkg/retry"
)

// ObjectAPI is the slice of the S3 client the staging store uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewObjectAPI builds an S3 client from the ambient AWS credential chain.
func NewObjectAPI(ctx context.Context, region string) (ObjectAPI, error) {
	opts := make([]func(*awsconfig.LoadOptions) error, 0, 1)
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

type StoreConfig struct {
	Logger *slog.Logger
	Client ObjectAPI
	Bucket string
	Prefix string
	Retry  retry.Config
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("object client is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	return nil
}

// Store stages tables as parquet objects at <prefix>/<table>.parquet,
// overwritten on every run.
type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

func (s *Store) key(name string) string {
	return path.Join(s.cfg.Prefix, name+".parquet")
}

// Put serializes a table and overwrites its staging object.
func (s *Store) Put(ctx context.Context, name string, t *table.Table) error {
	data, err := encode(t)
	if err != nil {
		return fmt.Errorf("failed to encode %s as parquet: %w", name, err)
	}
	key := s.key(name)
	err = retry.Do(ctx, s.cfg.Retry, func() error {
		_, err := s.cfg.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &s.cfg.Bucket,
			Key:    &key,
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to put s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	s.log.Info("staged table", "table", name, "bucket", s.cfg.Bucket, "key", key, "bytes", len(data), "rows", t.NumRows())
	return nil
}

// Get retrieves and decodes a staged table.
func (s *Store) Get(ctx context.Context, name string) (*table.Table, error) {
	key := s.key(name)
	var data []byte
	err := retry.Do(ctx, s.cfg.Retry, func() error {
		out, err := s.cfg.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: &s.cfg.Bucket,
			Key:    &key,
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	t, err := decode(name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	s.log.Debug("fetched staged table", "table", name, "rows", t.NumRows())
	return t, nil
}
