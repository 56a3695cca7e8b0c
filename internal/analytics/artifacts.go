package analytics

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const s3Scheme = "s3://"

// Fetcher читает содержимое артефакта по URI
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// ArtifactFetcher читает локальные файлы и объекты s3://bucket/key
type ArtifactFetcher struct {
	region string
	s3     s3iface.S3API
}

// NewArtifactFetcher создает загрузчик. S3 клиент создается при первом обращении к s3://.
func NewArtifactFetcher(region string) *ArtifactFetcher {
	return &ArtifactFetcher{region: region}
}

// NewArtifactFetcherWithS3 создает загрузчик с готовым S3 клиентом
func NewArtifactFetcherWithS3(client s3iface.S3API) *ArtifactFetcher {
	return &ArtifactFetcher{s3: client}
}

// Fetch возвращает содержимое артефакта
func (f *ArtifactFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if strings.HasPrefix(uri, s3Scheme) {
		return f.fetchS3(ctx, uri)
	}

	data, err := os.ReadFile(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifact, err)
	}
	return data, nil
}

func (f *ArtifactFetcher) fetchS3(ctx context.Context, uri string) ([]byte, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	if f.s3 == nil {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(f.region),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create AWS session: %v", ErrArtifact, err)
		}
		f.s3 = s3.New(sess)
	}

	result, err := f.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to download %s: %v", ErrArtifact, uri, err)
	}
	defer result.Body.Close()

	content, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrArtifact, uri, err)
	}
	return content, nil
}

// ParseS3URI разбирает s3://bucket/key
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, s3Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: malformed S3 URI %q", ErrArtifact, uri)
	}
	return bucket, key, nil
}
