package avatars

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config targets an S3-compatible object store for generated avatars.
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
}

// S3Provider generates identicon avatars and stores them in an object
// bucket under a key derived from the user id. The key and content are both
// deterministic, so re-provisioning re-uploads the identical object and the
// returned URL never changes.
type S3Provider struct {
	uploader *manager.Uploader
	bucket   string
	baseURL  string

	mu       sync.Mutex
	uploaded map[string]string
}

// NewS3Provider configures an uploader targeting the provided object store.
func NewS3Provider(ctx context.Context, cfg S3Config) (*S3Provider, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("avatar storage: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if strings.TrimSpace(cfg.Endpoint) != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:           cfg.Endpoint,
					SigningRegion: cfg.Region,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	uploader := manager.NewUploader(client)

	return &S3Provider{
		uploader: uploader,
		bucket:   cfg.Bucket,
		baseURL:  strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		uploaded: make(map[string]string),
	}, nil
}

// URLFor renders the user's identicon, uploads it if this process has not
// done so already, and returns its public location.
func (p *S3Provider) URLFor(ctx context.Context, userID string) (string, error) {
	p.mu.Lock()
	if location, ok := p.uploaded[userID]; ok {
		p.mu.Unlock()
		return location, nil
	}
	p.mu.Unlock()

	img, err := identiconPNG(userID)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("avatars/%s.png", seed(userID))
	_, err = p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(img),
		ContentType: aws.String("image/png"),
		ACL:         s3types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar %s: %w", key, err)
	}

	location := key
	if p.baseURL != "" {
		location = fmt.Sprintf("%s/%s", p.baseURL, key)
	}

	p.mu.Lock()
	p.uploaded[userID] = location
	p.mu.Unlock()

	return location, nil
}
