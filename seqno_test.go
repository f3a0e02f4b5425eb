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

package eventsourced

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinSeqNo(t *testing.T) {
	assert.Equal(t, int64(1), MinSeqNo().Int64())
}

func TestNewSeqNo_RejectsNonPositive(t *testing.T) {
	for _, n := range []int64{0, -1, math.MinInt64} {
		_, err := NewSeqNo(n)
		assert.ErrorIs(t, err, ErrZeroSeqNo)
	}
}

func TestNewSeqNo_AcceptsPositive(t *testing.T) {
	s, err := NewSeqNo(42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), s.Int64())
}

func TestSeqNo_Next(t *testing.T) {
	s := MinSeqNo()
	next, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Int64())
}

func TestSeqNo_Next_Overflow(t *testing.T) {
	s, err := NewSeqNo(math.MaxInt64)
	require.NoError(t, err)
	_, err = s.Next()
	assert.ErrorIs(t, err, ErrSeqNoOverflow)
}

func TestSeqNo_CompareAndLess(t *testing.T) {
	a, _ := NewSeqNo(1)
	b, _ := NewSeqNo(2)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}

func TestSeqNo_String(t *testing.T) {
	s, _ := NewSeqNo(7)
	assert.Equal(t, "7", s.String())
}
