// Copyright 2024 The eventsourced Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package blob implements the eventsourced SnapshotStore contract over any
// S3-compatible object store, as a third reference adapter supplementing
// the broker-KV and relational ones.
package blob

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the client and key-layout parameters for the Store.
type Config struct {
	// Client, if set, is used as-is; otherwise one is built from the
	// remaining fields.
	Client *s3.Client

	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool

	// Bucket is the S3 bucket snapshots are stored in. The bucket must
	// already exist; this package never creates one.
	Bucket string
	// KeyPrefix namespaces every object key, e.g. "snapshots/".
	KeyPrefix string
}

// buildClient resolves cfg.Client, constructing one from the remaining
// fields if it is nil.
func buildClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	if cfg.Client != nil {
		return cfg.Client, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("blob: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

func objectKey(prefix string, id any) string {
	return fmt.Sprintf("%s%v", prefix, id)
}
