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
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRecord is a minimal ConfigRecord used to exercise the dictionary
// without depending on any real codegen'd message type.
type testRecord struct {
	key   string
	value uint32
}

func (r *testRecord) CodegenTypeIndex() uint32 { return 7 }
func (r *testRecord) Key() []byte              { return []byte(r.key) }
func (r *testRecord) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, r.value)
	return buf
}
func (r *testRecord) Unmarshal(payload []byte) error {
	if len(payload) < 4 {
		return ErrInvalidFrame
	}
	r.value = binary.LittleEndian.Uint32(payload)
	return nil
}

func TestDictionary_CreateOrUpdateNewRecord(t *testing.T) {
	mem := make([]byte, 64*1024)
	dict, err := NewSharedConfigDictionary(mem, 16)
	require.NoError(t, err)

	rec := &testRecord{key: "component.alpha", value: 42}
	off, result, err := dict.CreateOrUpdate(rec)
	require.NoError(t, err)
	assert.Equal(t, Created, result)
	assert.NotZero(t, off)

	foundOff, lookupResult := dict.Lookup(rec.CodegenTypeIndex(), rec.Key())
	assert.Equal(t, Found, lookupResult)
	assert.Equal(t, off, foundOff)
}

// TestDictionary_CreateOrUpdateExistingWins is one of the named scenarios:
// a second CreateOrUpdate call for the same (type, key) must bind to the
// first record (copying its shared value into the caller's struct) rather
// than allocating a second record.
func TestDictionary_CreateOrUpdateExistingWins(t *testing.T) {
	mem := make([]byte, 64*1024)
	dict, err := NewSharedConfigDictionary(mem, 16)
	require.NoError(t, err)

	first := &testRecord{key: "component.alpha", value: 42}
	firstOff, result, err := dict.CreateOrUpdate(first)
	require.NoError(t, err)
	require.Equal(t, Created, result)

	second := &testRecord{key: "component.alpha", value: 999}
	secondOff, result, err := dict.CreateOrUpdate(second)
	require.NoError(t, err)
	assert.Equal(t, Existing, result)
	assert.Equal(t, firstOff, secondOff)
	// second.value was overwritten from the already-published record, not
	// from what second itself tried to write.
	assert.Equal(t, uint32(42), second.value)
}

func TestDictionary_LookupMissingReturnsNotFound(t *testing.T) {
	mem := make([]byte, 64*1024)
	dict, err := NewSharedConfigDictionary(mem, 16)
	require.NoError(t, err)

	_, result := dict.Lookup(7, []byte("nothing here"))
	assert.Equal(t, NotFound, result)
}

// TestDictionary_SlotCountMinusOneEmpty covers the near-full case:
// CountEmptySlots reports every slot empty on a fresh dictionary, and
// exactly one empty after slot_count-1 records have been created.
func TestDictionary_SlotCountMinusOneEmpty(t *testing.T) {
	mem := make([]byte, 256*1024)
	const slots = 8
	dict, err := NewSharedConfigDictionary(mem, slots)
	require.NoError(t, err)

	assert.Equal(t, uint64(slots), dict.CountEmptySlots())

	for i := 0; i < slots-1; i++ {
		rec := &testRecord{key: string(rune('a' + i)), value: uint32(i)}
		_, result, err := dict.CreateOrUpdate(rec)
		require.NoError(t, err)
		require.Equal(t, Created, result)
	}

	assert.Equal(t, uint64(1), dict.CountEmptySlots())
}

func TestDictionary_OpenRecoversSlotCountFromFirstAllocation(t *testing.T) {
	mem := make([]byte, 64*1024)
	dict, err := NewSharedConfigDictionary(mem, 32)
	require.NoError(t, err)
	rec := &testRecord{key: "k", value: 1}
	_, _, err = dict.CreateOrUpdate(rec)
	require.NoError(t, err)

	reopened, err := OpenSharedConfigDictionary(mem)
	require.NoError(t, err)
	assert.Equal(t, dict.SlotCount(), reopened.SlotCount())

	off, result := reopened.Lookup(rec.CodegenTypeIndex(), rec.Key())
	assert.Equal(t, Found, result)
	assert.NotZero(t, off)
}

func TestHashKeyIsStableAndDistinguishesKeys(t *testing.T) {
	h1 := HashKey([]byte("alpha"))
	h2 := HashKey([]byte("alpha"))
	h3 := HashKey([]byte("beta"))
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
