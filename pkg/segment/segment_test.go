//go:build linux

/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package segment

import (
	"context"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalshm "github.com/srediag/shm-segment/internal/shm"
)

func TestAttachOwnsHandleAndMapping(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Options{})
	name := testName(t)

	seg, err := m.Attach(ctx, name, 4096, true)
	require.NoError(t, err)
	assert.Equal(t, 4096, len(seg.Bytes()))
	assert.Equal(t, seg.Name(), seg.Mapping().Name())

	copy(seg.Bytes(), "owned")
	assert.Equal(t, "owned", string(seg.Bytes()[:5]))

	require.NoError(t, seg.Unlink(ctx))
	require.NoError(t, seg.Close(ctx))

	stats := m.Stats()
	assert.Equal(t, 0, stats.OpenHandles)
	assert.Equal(t, 0, stats.ActiveMappings)
}

func TestAttachExistingMapsWholeObject(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Options{})
	name := testName(t)

	creator, err := m.Attach(ctx, name, 8192, true)
	require.NoError(t, err)
	defer func() {
		_ = m.Unlink(ctx, name)
		_ = creator.Close(ctx)
	}()

	attached, err := m.Attach(ctx, name, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 8192, len(attached.Bytes()))

	copy(creator.Bytes(), "creator wrote this")
	assert.Equal(t, "creator wrote this", string(attached.Bytes()[:18]))

	assert.NoError(t, attached.Close(ctx))
}

func TestAttachMissingWithoutCreate(t *testing.T) {
	m := NewManager(Options{})
	_, err := m.Attach(context.Background(), testName(t), 0, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachCleansUpOnMapFailure(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Options{})
	name := testName(t)

	// Creating with size 0 leaves nothing mappable, so the map step fails
	// and the partially built segment must be torn down.
	_, err := m.Attach(ctx, name, 0, true)
	assert.ErrorIs(t, err, ErrMapping)

	_, statErr := os.Stat(internalshm.PathFor(name))
	assert.ErrorIs(t, statErr, fs.ErrNotExist)
	assert.Equal(t, 0, m.Stats().OpenHandles)
}

func TestAttachWithRetryWaitsForPeer(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Options{})
	name := testName(t)

	written := make(chan struct{})
	go func() {
		defer close(written)
		time.Sleep(100 * time.Millisecond)
		peer, err := m.Attach(ctx, name, 4096, true)
		if err != nil {
			return
		}
		copy(peer.Bytes(), "peer data")
		_ = peer.Close(ctx)
	}()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxElapsedTime = 5 * time.Second

	seg, err := AttachWithRetry(ctx, m, name, 0, bo)
	require.NoError(t, err)
	defer func() {
		_ = seg.Unlink(ctx)
		_ = seg.Close(ctx)
	}()

	<-written
	assert.Equal(t, 4096, len(seg.Bytes()))
	assert.Equal(t, "peer data", string(seg.Bytes()[:9]))
}

func TestAttachWithRetryPermanentFailure(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Options{})

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 3)
	start := time.Now()
	_, err := AttachWithRetry(ctx, m, "", 0, bo)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	// Invalid names must not be retried until the budget runs out.
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestAttachWithRetryGivesUp(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Options{})

	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(5*time.Millisecond), 3)
	_, err := AttachWithRetry(ctx, m, testName(t), 0, bo)
	assert.ErrorIs(t, err, ErrNotFound)
}
