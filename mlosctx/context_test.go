/*
 *
 * Copyright 2026 the mlos-shm authors.
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
 *
 */

package mlosctx

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlos-shm/mlos-shm/internal/shm"
)

type testComponentConfig struct {
	name  string
	value uint32
}

func (c *testComponentConfig) CodegenTypeIndex() uint32 { return 42 }
func (c *testComponentConfig) Key() []byte              { return []byte(c.name) }
func (c *testComponentConfig) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, c.value)
	return buf
}
func (c *testComponentConfig) Unmarshal(payload []byte) error {
	c.value = binary.LittleEndian.Uint32(payload)
	return nil
}

func newTestContext(t *testing.T) *MlosContext {
	t.Helper()
	ctx, err := NewInternalTest(WithDictionarySlots(32), WithChannelSize(8192))
	if err == shm.ErrUnsupported {
		t.Skip("shared memory not supported on this platform")
	}
	require.NoError(t, err)
	t.Cleanup(func() { ctx.Close(true) })
	return ctx
}

func TestRegisterSettingsAssemblyAllocatesSequentialIndices(t *testing.T) {
	ctx := newTestContext(t)

	idx1, err := ctx.RegisterSettingsAssembly("alpha.dll", 10)
	require.NoError(t, err)
	idx2, err := ctx.RegisterSettingsAssembly("beta.dll", 20)
	require.NoError(t, err)

	assert.NotEqual(t, idx1, idx2)
	assert.Equal(t, idx1+1, idx2)
}

func TestRegisterComponentConfigCreateThenUpdateBindsToExisting(t *testing.T) {
	ctx := newTestContext(t)

	first := &testComponentConfig{name: "component.one", value: 7}
	offset1, created1, err := ctx.RegisterComponentConfig(first)
	require.NoError(t, err)
	assert.True(t, created1)

	second := &testComponentConfig{name: "component.one", value: 999}
	offset2, created2, err := ctx.RegisterComponentConfig(second)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, offset1, offset2)
	assert.Equal(t, uint32(7), second.value, "second must be bound to the already-published record")
}

func TestTerminateControlChannelWakesBlockedReader(t *testing.T) {
	ctx := newTestContext(t)

	table := CoreDispatchTable(
		func(RegisterSettingsAssemblyRequest) bool { return true },
		func(RegisterSharedConfigMemoryRegionRequest) bool { return true },
		func() bool { return true },
	)

	done := make(chan error, 1)
	go func() {
		done <- ctx.regions.ControlChannel.ProcessMessages(context.Background(), table)
	}()

	time.Sleep(20 * time.Millisecond) // let the reader reach its wait loop

	require.NoError(t, ctx.TerminateControlChannel())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("control channel reader did not return after TerminateControlChannel")
	}
}

func TestTerminateFeedbackChannelWaitsForActiveReaders(t *testing.T) {
	ctx := newTestContext(t)

	table := CoreDispatchTable(
		func(RegisterSettingsAssemblyRequest) bool { return true },
		func(RegisterSharedConfigMemoryRegionRequest) bool { return true },
		func() bool { return true },
	)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ctx.regions.FeedbackChannel.ProcessMessages(context.Background(), table)
	}()

	// Give the reader a moment to register itself as active before
	// terminating, so the spin-wait in TerminateFeedbackChannel has
	// something real to wait on.
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, ctx.TerminateFeedbackChannel())
	assert.Equal(t, uint32(0), ctx.regions.Global.FeedbackChannelSync().ActiveReaderCount())

	<-done
}
