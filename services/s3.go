package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type AWSServiceProvider interface {
	InitClients(ctx context.Context) error
	Upload(ctx context.Context, bucketName, fileKey string, fileContent []byte) error
	Remove(ctx context.Context, bucketName string, fileKeys []string) error
	GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error)
	CreateSignedURLs(ctx context.Context, bucketName string, fileKeys []string) (map[string]string, error)
}

type AWSService struct {
	S3Client        *s3.Client
	S3PresignClient *s3.PresignClient
}

func (awsService *AWSService) InitClients(ctx context.Context) error {
	var accountId = GetEnv("R2_ACCOUNT_ID", "")
	var accessKeyId = GetEnv("R2_ACCESS_KEY_ID", "")
	var accessKeySecret = GetEnv("R2_ACCESS_KEY_SECRET", "")
	r2Resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		return aws.Endpoint{
			URL: fmt.Sprintf("https://%s.r2.cloudflarestorage.com", accountId),
		}, nil
	})
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithEndpointResolverWithOptions(r2Resolver),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyId, accessKeySecret, "")),
	)
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	s3Client := s3.NewFromConfig(cfg)

	awsService.S3Client = s3Client
	awsService.S3PresignClient = s3.NewPresignClient(s3Client)
	return err
}

func (awsService *AWSService) Upload(ctx context.Context, bucketName, fileKey string, fileContent []byte) error {
	mimeType := http.DetectContentType(fileContent)
	allowedMimeTypes := map[string]bool{
		"image/png":  true,
		"image/jpeg": true,
		"image/webp": true,
	}
	if !allowedMimeTypes[mimeType] {
		return fmt.Errorf("unsupported file type: %s", mimeType)
	}

	_, err := awsService.S3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucketName),
		Key:         aws.String(fileKey),
		Body:        bytes.NewReader(fileContent),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %v", fileKey, err)
	}
	return nil
}

// Remove deletes the given objects in one call. Keys that do not exist are
// treated as deleted, so compensation paths can retry safely.
func (awsService *AWSService) Remove(ctx context.Context, bucketName string, fileKeys []string) error {
	if len(fileKeys) == 0 {
		return nil
	}
	objects := make([]types.ObjectIdentifier, 0, len(fileKeys))
	for _, key := range fileKeys {
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}
	_, err := awsService.S3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucketName),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to delete objects: %v", err)
	}
	return nil
}

func (awsService *AWSService) GetPresignedR2FileReadURL(ctx context.Context, bucketName, fileKey string) (string, error) {
	presignedGetRequest, err := awsService.S3PresignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(fileKey),
	}, s3.WithPresignExpires(SignedURLTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign request: %v", err)
	}

	return presignedGetRequest.URL, nil
}

// CreateSignedURLs signs many keys at once. A key that fails to sign is left
// out of the result instead of failing the whole batch.
func (awsService *AWSService) CreateSignedURLs(ctx context.Context, bucketName string, fileKeys []string) (map[string]string, error) {
	urls := make(map[string]string, len(fileKeys))
	var lastErr error
	for _, key := range fileKeys {
		url, err := awsService.GetPresignedR2FileReadURL(ctx, bucketName, key)
		if err != nil {
			fmt.Printf("[Storage] failed to sign %s: %v\n", key, err)
			lastErr = err
			continue
		}
		urls[key] = url
	}
	if len(urls) == 0 && lastErr != nil {
		return urls, lastErr
	}
	return urls, nil
}
