package cloudstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// S3Store keeps photo blobs in a private S3 bucket under
// "<prefix>/<entryID>-<variant>.jpg". Keys are derived from the asset
// reference, so a stale reference maps to a missing object and surfaces as
// ErrAssetNotFound.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3-backed store from the default AWS config chain.
func NewS3Store(ctx context.Context, bucket, region, prefix string) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is empty")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket, prefix: prefix}, nil
}

// NewS3StoreWithClient allows wiring with an existing client.
func NewS3StoreWithClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) Upload(ctx context.Context, entryID uuid.UUID, fullJPEG, thumbJPEG []byte) (UploadedRefs, error) {
	if err := s.put(ctx, s.key(entryID, VariantFull), fullJPEG); err != nil {
		return UploadedRefs{}, err
	}
	if err := s.put(ctx, s.key(entryID, VariantThumb), thumbJPEG); err != nil {
		return UploadedRefs{}, err
	}
	return UploadedRefs{
		FullAssetRef:  MakeAssetRef(entryID, VariantFull),
		ThumbAssetRef: MakeAssetRef(entryID, VariantThumb),
	}, nil
}

func (s *S3Store) Download(ctx context.Context, assetRef string) ([]byte, error) {
	entryID, variant, err := ParseAssetRef(assetRef)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(entryID, variant)),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (s *S3Store) put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (s *S3Store) key(entryID uuid.UUID, variant string) string {
	return path.Join(s.prefix, fmt.Sprintf("%s-%s.jpg", entryID, variant))
}
