package repository

import (
	"catalog-validation/config"
	"catalog-validation/internal/model"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var ErrUnresolvableUpload = errors.New("uploaded file can not be resolved")

// StoredFile is where an uploaded resource can be read from. Exactly one of
// Path and URL is set. Presigned URLs carry their own credentials.
type StoredFile struct {
	Path      string
	URL       string
	Presigned bool
}

// StorageRepository resolves uploaded resources to a readable location.
type StorageRepository interface {
	Resolve(ctx context.Context, resource *model.Resource) (*StoredFile, error)
}

// S3Presigner is the part of the s3 presign client used here.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

func NewStorageRepository(ctx context.Context, cfg config.Storage) (StorageRepository, error) {
	switch cfg.Driver {
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return NewS3StorageRepository(cfg, s3.NewPresignClient(s3.NewFromConfig(awsCfg))), nil
	case "local", "":
		return NewLocalStorageRepository(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

type localStorageRepository struct {
	storagePath string
}

// NewLocalStorageRepository resolves uploads within the filestore layout
// <storage_path>/resources/<id[0:3]>/<id[3:6]>/<id[6:]>.
func NewLocalStorageRepository(storagePath string) StorageRepository {
	return &localStorageRepository{storagePath: storagePath}
}

func (r *localStorageRepository) Resolve(_ context.Context, resource *model.Resource) (*StoredFile, error) {
	id := resource.ID
	if len(id) < 7 {
		return nil, fmt.Errorf("%w: invalid resource id %q", ErrUnresolvableUpload, id)
	}
	p := filepath.Join(r.storagePath, "resources", id[0:3], id[3:6], id[6:])
	return &StoredFile{Path: p}, nil
}

type s3StorageRepository struct {
	cfg       config.Storage
	presigner S3Presigner
}

func NewS3StorageRepository(cfg config.Storage, presigner S3Presigner) StorageRepository {
	return &s3StorageRepository{cfg: cfg, presigner: presigner}
}

func uploadFilename(resourceURL string) string {
	if u, err := url.Parse(resourceURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(resourceURL)
}

func (r *s3StorageRepository) Resolve(ctx context.Context, resource *model.Resource) (*StoredFile, error) {
	filename := uploadFilename(resource.URL)
	if filename == "" || filename == "." || filename == "/" {
		return nil, fmt.Errorf("%w: resource %s has no file name", ErrUnresolvableUpload, resource.ID)
	}

	key := path.Join(strings.Trim(r.cfg.Prefix, "/"), "resources", resource.ID, filename)
	ttl := r.cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(r.cfg.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String("attachment; filename=" + filename),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return nil, fmt.Errorf("%w: presign %s: %v", ErrUnresolvableUpload, key, err)
	}
	return &StoredFile{URL: req.URL, Presigned: true}, nil
}
