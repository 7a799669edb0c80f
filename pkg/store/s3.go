/*
Copyright AppsCode Inc. and Contributors

Licensed under the AppsCode Free Trial License 1.0.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    https://github.com/appscode/licenses/raw/1.0.0/AppsCode-Free-Trial-1.0.0.md

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sort"

	"stash.appscode.dev/kubedr/pkg/retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/pkg/errors"
)

// S3API is the subset of *s3.Client the store uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO.
	Endpoint  string
	PathStyle bool
}

type s3Store struct {
	api    S3API
	bucket string
}

func NewS3(api S3API, bucket string) Interface {
	return s3Store{api: api, bucket: bucket}
}

// NewS3FromEnv builds a client from the default AWS credential chain. SDK
// level retries are disabled; callers wrap every call in a retry.Executor.
func NewS3FromEnv(ctx context.Context, opt S3Options) (Interface, error) {
	if opt.Bucket == "" {
		return nil, errors.New("missing bucket name")
	}
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if opt.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opt.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load aws config")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opt.Endpoint != "" {
			o.BaseEndpoint = aws.String(opt.Endpoint)
		}
		o.UsePathStyle = opt.PathStyle
	})
	return NewS3(client, opt.Bucket), nil
}

func (s s3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/yaml"),
	})
	return classify(errors.Wrapf(err, "failed to put s3://%s/%s", s.bucket, key))
}

func (s s3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	var token *string
	for {
		resp, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, classify(errors.Wrapf(err, "failed to list s3://%s/%s", s.bucket, prefix))
		}
		for _, obj := range resp.Contents {
			out = append(out, aws.ToString(obj.Key))
		}
		if aws.ToString(resp.NextContinuationToken) == "" {
			break
		}
		token = resp.NextContinuationToken
	}
	sort.Strings(out)
	return out, nil
}

func (s s3Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, retry.NewPermanent(errors.Wrap(ErrNotFound, key))
		}
		return nil, classify(errors.Wrapf(err, "failed to get s3://%s/%s", s.bucket, key))
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.NewTransient(errors.Wrapf(err, "failed to read s3://%s/%s", s.bucket, key))
	}
	return data, nil
}

var transientCodes = map[string]bool{
	"InternalError":      true,
	"RequestTimeout":     true,
	"ServiceUnavailable": true,
	"SlowDown":           true,
	"Throttling":         true,
}

// classify tags err as transient or permanent from the S3 response. Errors
// that never reached S3 are left to the executor's classifier.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if errors.As(err, &ae) && transientCodes[ae.ErrorCode()] {
		return retry.NewTransient(err)
	}
	var hs interface{ HTTPStatusCode() int }
	if errors.As(err, &hs) {
		code := hs.HTTPStatusCode()
		switch {
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			return retry.NewTransient(err)
		case code >= http.StatusBadRequest:
			return retry.NewPermanent(err)
		}
	}
	if ae != nil {
		return retry.NewPermanent(err)
	}
	return err
}
