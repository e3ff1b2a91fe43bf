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

package shm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBootstrapAnonymousCreatesUsableRegionSet(t *testing.T) {
	regions, err := BootstrapAnonymous(BootstrapOptions{
		GlobalRegionSize: 64 * 1024,
		ChannelSize:      16 * 1024,
		SharedConfigSize: 16 * 1024,
		DictionarySlots:  32,
	})
	if err == ErrUnsupported {
		t.Skip("anonymous shared memory not supported on this platform")
	}
	require.NoError(t, err)
	defer regions.Detach(true)

	assert.Equal(t, uint32(1), regions.Global.AttachedProcessCount())
	assert.NotNil(t, regions.ControlChannel)
	assert.NotNil(t, regions.FeedbackChannel)
	assert.NotNil(t, regions.SharedConfig)

	InitializeChannel(regions.ControlChannel)
	require.NoError(t, regions.ControlChannel.Send(1, 0xaa, []byte("ping")))
}

func TestBootstrapNamedAttachIncrementsProcessCount(t *testing.T) {
	prefix := uniqueTestName("Test_Mlos")

	first, err := Bootstrap(BootstrapOptions{NamePrefix: prefix, DictionarySlots: 32})
	if err == ErrUnsupported {
		t.Skip("shared memory not supported on this platform")
	}
	require.NoError(t, err)

	assert.Equal(t, uint32(1), first.Global.AttachedProcessCount())

	second, err := Bootstrap(BootstrapOptions{NamePrefix: prefix, DictionarySlots: 32})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), second.Global.AttachedProcessCount())

	require.NoError(t, second.Detach(false))
	require.NoError(t, first.Detach(true))
}
