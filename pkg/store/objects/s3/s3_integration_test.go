//go:build integration

package s3

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/store/objects/storetest"
)

// TestS3Store_Integration runs the object store suite against Localstack.
//
// Prerequisites:
//   - Localstack running on localhost:4566
//   - Run with: go test -tags=integration ./pkg/store/objects/s3/...
//
// To start Localstack:
//
//	docker run --rm -p 4566:4566 localstack/localstack
func TestS3Store_Integration(t *testing.T) {
	ctx := context.Background()

	endpoint := os.Getenv("LOCALSTACK_ENDPOINT")
	if endpoint == "" {
		endpoint = "http://localhost:4566"
	}

	cfg, err := awsConfig.LoadDefaultConfig(ctx,
		awsConfig.WithRegion("us-east-1"),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	require.NoError(t, err)

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true // Required for Localstack
	})

	bucketName := "avatarsync-test-bucket"
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	require.NoError(t, err)

	t.Cleanup(func() {
		listResp, _ := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(bucketName)})
		if listResp != nil {
			for _, obj := range listResp.Contents {
				_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucketName), Key: obj.Key})
			}
		}
		_, _ = client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)})
	})

	suite := &storetest.Suite{
		NewStore: func(t *testing.T) objects.Store {
			store, err := New(ctx, StoreConfig{
				Client:    client,
				Bucket:    bucketName,
				KeyPrefix: t.Name() + "/",
			})
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}
