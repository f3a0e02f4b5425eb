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

package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	retry "github.com/avast/retry-go/v4"

	"github.com/jrudolph/eventsourced"
	"github.com/jrudolph/eventsourced/internal/envelope"
)

// stateCodec is the slice of eventsourced.Codec that Store needs.
type stateCodec[State any] interface {
	StateToBytes(*State) ([]byte, error)
	StateFromBytes([]byte) (State, error)
}

// Store implements eventsourced.SnapshotStore[Id, State] over S3-compatible
// object storage: Save is a PutObject of the shared internal/envelope
// encoding, Load is a GetObject that maps a missing key to
// (_, _, false, nil) rather than an error.
type Store[Id, State any] struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	codec     stateCodec[State]
}

// New verifies bucket access and returns a Store.
func New[Id, State any](ctx context.Context, cfg Config, codec stateCodec[State]) (*Store[Id, State], error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("blob: bucket is required")
	}

	client, err := buildClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("blob: access bucket %q: %w", cfg.Bucket, err)
	}

	return &Store[Id, State]{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		codec:     codec,
	}, nil
}

// Save implements eventsourced.SnapshotStore.
func (s *Store[Id, State]) Save(ctx context.Context, id Id, seqNo eventsourced.SeqNo, state State) error {
	raw, err := s.codec.StateToBytes(&state)
	if err != nil {
		return fmt.Errorf("%w: %v", eventsourced.ErrCodec, err)
	}

	key := objectKey(s.keyPrefix, id)
	body := envelope.Encode(uint64(seqNo.Int64()), raw)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", eventsourced.ErrConnectivity, key, err)
	}
	return nil
}

// Load implements eventsourced.SnapshotStore. Reads are retried (bounded,
// never the write path) since transient S3 errors are common and the read
// path has no at-most-once constraint to preserve.
func (s *Store[Id, State]) Load(ctx context.Context, id Id) (eventsourced.SeqNo, State, bool, error) {
	var zero State
	key := objectKey(s.keyPrefix, id)

	var body []byte
	var found bool
	err := retry.Do(func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			var nsk *types.NoSuchKey
			if errors.As(err, &nsk) {
				return nil
			}
			return err
		}
		defer out.Body.Close()

		b, rerr := io.ReadAll(out.Body)
		if rerr != nil {
			return rerr
		}
		body = b
		found = true
		return nil
	}, retry.Attempts(3), retry.Context(ctx))
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: get %s: %v", eventsourced.ErrConnectivity, key, err)
	}
	if !found {
		return eventsourced.SeqNo{}, zero, false, nil
	}

	rawSeq, rawState, err := envelope.Decode(body)
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: %v", eventsourced.ErrCorruption, err)
	}
	seqNo, err := eventsourced.NewSeqNo(int64(rawSeq))
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: %v", eventsourced.ErrCorruption, err)
	}

	state, err := s.codec.StateFromBytes(rawState)
	if err != nil {
		return eventsourced.SeqNo{}, zero, false, fmt.Errorf("%w: %v", eventsourced.ErrCodec, err)
	}

	return seqNo, state, true, nil
}
