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
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniqueTestName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}

func TestCreateNewThenOpenExistingRoundTrip(t *testing.T) {
	name := uniqueTestName("mlos-test-mmap")
	m1, err := CreateNew(name, 4096)
	if err == ErrUnsupported {
		t.Skip("shared memory not supported on this platform")
	}
	require.NoError(t, err)
	defer m1.Close(true)

	m1.Mem[0] = 0xAB

	m2, err := OpenExisting(name)
	require.NoError(t, err)
	defer m2.Close(false)

	assert.Equal(t, byte(0xAB), m2.Mem[0])
	assert.Equal(t, uint64(4096), m2.Size())
}

func TestCreateNewFailsIfAlreadyExists(t *testing.T) {
	name := uniqueTestName("mlos-test-mmap-dup")
	m1, err := CreateNew(name, 4096)
	if err == ErrUnsupported {
		t.Skip("shared memory not supported on this platform")
	}
	require.NoError(t, err)
	defer m1.Close(true)

	_, err = CreateNew(name, 4096)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreateOrOpenReportsWhichBranchTaken(t *testing.T) {
	name := uniqueTestName("mlos-test-mmap-createoropen")

	m1, created, err := CreateOrOpen(name, 4096)
	if err == ErrUnsupported {
		t.Skip("shared memory not supported on this platform")
	}
	require.NoError(t, err)
	assert.True(t, created)

	m2, created, err := CreateOrOpen(name, 4096)
	require.NoError(t, err)
	assert.False(t, created)

	m1.Close(false)
	m2.Close(true)
}

func TestOpenExistingMissingReturnsErrNotFound(t *testing.T) {
	_, err := OpenExisting(uniqueTestName("mlos-test-mmap-missing"))
	if err == ErrUnsupported {
		t.Skip("shared memory not supported on this platform")
	}
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAnonymousHasNoFilesystemPath(t *testing.T) {
	m, err := CreateAnonymous("test-anon", 4096)
	if err == ErrUnsupported {
		t.Skip("anonymous shared memory not supported on this platform")
	}
	require.NoError(t, err)
	defer m.Close(false)

	assert.Empty(t, m.Path)
	assert.GreaterOrEqual(t, m.Fd(), 0)
}

func TestOpenFromDescriptorAttachesToAnonymousRegion(t *testing.T) {
	m, err := CreateAnonymous("test-anon-fd", 4096)
	if err == ErrUnsupported {
		t.Skip("anonymous shared memory not supported on this platform")
	}
	require.NoError(t, err)
	m.Mem[10] = 0x42

	reopened, err := OpenFromDescriptor(m.Fd())
	require.NoError(t, err)
	defer reopened.Close(false)

	assert.Equal(t, byte(0x42), reopened.Mem[10])
	m.Close(false)
}
