package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"save-go/internal/save"
)

// InternetArchiveEndpoint is the S3-compatible upload endpoint of the
// Internet Archive.
const InternetArchiveEndpoint = "https://s3.us.archive.org"

// S3Options configure an S3Backend.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// PublicBase, if set, replaces the default public URL of objects:
	// PublicBase + "/" + key.
	PublicBase string

	// PathStyle addresses the bucket in the path rather than the host name,
	// as most S3-compatible services require.
	PathStyle bool

	// Headers are extra HTTP headers sent with every upload, such as the
	// Internet Archive's x-archive-* item metadata.
	Headers map[string]string
}

// S3Backend uploads assets to an S3 bucket. Large files are sent in
// parallel parts by the SDK's upload manager.
type S3Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	opts     S3Options
}

func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 backend requires a bucket")
	}
	if opts.Region == "" {
		opts.Region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(opts.Region)}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return &S3Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		opts:     opts,
	}, nil
}

// NewInternetArchiveBackend targets an Internet Archive item. The item
// identifier is the bucket; it is created on first upload.
func NewInternetArchiveBackend(ctx context.Context, item, accessKey, secretKey string) (*S3Backend, error) {
	return NewS3Backend(ctx, S3Options{
		Bucket:     item,
		Endpoint:   InternetArchiveEndpoint,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		PublicBase: "https://archive.org/download/" + item,
		PathStyle:  true,
		Headers: map[string]string{
			"x-archive-auto-make-bucket":     "1",
			"x-archive-interactive-priority": "1",
		},
	})
}

// URL is the public URL of an object.
func (b *S3Backend) URL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	if b.opts.PublicBase != "" {
		return strings.TrimRight(b.opts.PublicBase, "/") + "/" + escaped
	}
	if b.opts.Endpoint != "" {
		return strings.TrimRight(b.opts.Endpoint, "/") + "/" + b.opts.Bucket + "/" + escaped
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.opts.Bucket, b.opts.Region, escaped)
}

func (b *S3Backend) withHeaders(o *s3.Options) {
	for k, v := range b.opts.Headers {
		o.APIOptions = append(o.APIOptions, smithyhttp.SetHeaderValue(k, v))
	}
}

func (b *S3Backend) Upload(ctx context.Context, req save.UploadRequest, progress save.ProgressFunc) (*save.UploadResult, error) {
	key := objectKey(b.opts.Prefix, req)
	in := &s3.PutObjectInput{
		Bucket: aws.String(b.opts.Bucket),
		Key:    aws.String(key),
		Body:   newProgressReader(ctx, req.Content, req.Size, progress),
	}
	if req.MimeType != "" {
		in.ContentType = aws.String(req.MimeType)
	}
	if _, err := b.uploader.Upload(ctx, in, func(u *manager.Uploader) {
		u.ClientOptions = append(u.ClientOptions, b.withHeaders)
	}); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}

	if req.Metadata != nil {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(b.opts.Bucket),
			Key:         aws.String(sidecarKey(key)),
			Body:        strings.NewReader(string(req.Metadata)),
			ContentType: aws.String("application/json"),
		}, b.withHeaders)
		if err != nil {
			return nil, fmt.Errorf("uploading metadata for %s: %w", key, err)
		}
	}
	return &save.UploadResult{Key: key, PublicURL: b.URL(key)}, nil
}

func (b *S3Backend) Remove(ctx context.Context, ref save.RemoteRef) error {
	if ref.Key == "" {
		return errors.New("remove: empty remote key")
	}
	for _, key := range []string{ref.Key, sidecarKey(ref.Key)} {
		_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(b.opts.Bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var nf *types.NoSuchKey
			if errors.As(err, &nf) {
				continue
			}
			return fmt.Errorf("deleting %s: %w", key, err)
		}
	}
	return nil
}

func (b *S3Backend) ListFolder(ctx context.Context, folder string) ([]save.RemoteEntry, error) {
	prefix := path.Join(b.opts.Prefix, folder)
	if prefix != "" && prefix != "." {
		prefix += "/"
	} else {
		prefix = ""
	}

	var out []save.RemoteEntry
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(b.opts.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			out = append(out, save.RemoteEntry{Name: name, IsFolder: true})
		}
		for _, obj := range page.Contents {
			out = append(out, save.RemoteEntry{
				Name:     strings.TrimPrefix(aws.ToString(obj.Key), prefix),
				Size:     aws.ToInt64(obj.Size),
				Modified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// ValidateSetup checks that the bucket exists and the credentials can
// reach it.
func (b *S3Backend) ValidateSetup(ctx context.Context) error {
	if _, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.opts.Bucket)}); err != nil {
		return fmt.Errorf("checking bucket %s: %w", b.opts.Bucket, err)
	}
	return nil
}

var _ save.Backend = (*S3Backend)(nil)
