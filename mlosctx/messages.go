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
	"encoding/binary"

	"github.com/mlos-shm/mlos-shm/internal/shm"
)

// Codegen type indices for the control messages the core itself emits.
// These occupy a fixed, reserved range of the control channel's dispatch
// table; a real settings assembly's own messages start after them.
const (
	MsgTypeRegisterSettingsAssemblyRequest           uint32 = 1
	MsgTypeRegisterSharedConfigMemoryRegionRequest    uint32 = 2
	MsgTypeTerminateReaderThreadRequest               uint32 = 3
)

// Content hashes for the core's own message types. There is no real
// codegen pipeline in scope, so these stand in for "the content-hash a
// codegen tool would have produced": a stable FNV-1a hash of the type's
// name, computed once at package init.
var (
	hashRegisterSettingsAssemblyRequest          = shm.HashKey([]byte("RegisterSettingsAssemblyRequest"))
	hashRegisterSharedConfigMemoryRegionRequest  = shm.HashKey([]byte("RegisterSharedConfigMemoryRegionRequest"))
	hashTerminateReaderThreadRequest             = shm.HashKey([]byte("TerminateReaderThreadRequest"))
)

// CoreDispatchTable is the dispatch table entry set for the core's own
// control messages; a caller building the control channel's real dispatch
// table should place these first, at indices matching the MsgType
// constants above (1-based), then append its own assembly's entries.
func CoreDispatchTable(onRegisterSettingsAssembly func(RegisterSettingsAssemblyRequest) bool,
	onRegisterSharedConfigMemoryRegion func(RegisterSharedConfigMemoryRegionRequest) bool,
	onTerminateReaderThread func() bool,
) shm.DispatchTable {
	return shm.DispatchTable{
		{
			ExpectedHash: hashRegisterSettingsAssemblyRequest,
			Handler: func(payload []byte, _ uint32) bool {
				m, ok := UnmarshalRegisterSettingsAssemblyRequest(payload)
				if !ok {
					return false
				}
				return onRegisterSettingsAssembly(m)
			},
		},
		{
			ExpectedHash: hashRegisterSharedConfigMemoryRegionRequest,
			Handler: func(payload []byte, _ uint32) bool {
				m, ok := UnmarshalRegisterSharedConfigMemoryRegionRequest(payload)
				if !ok {
					return false
				}
				return onRegisterSharedConfigMemoryRegion(m)
			},
		},
		{
			ExpectedHash: hashTerminateReaderThreadRequest,
			Handler: func(_ []byte, _ uint32) bool {
				return onTerminateReaderThread()
			},
		},
	}
}

// RegisterSettingsAssemblyRequest is sent target -> agent after a settings
// assembly has been registered in the global dictionary.
type RegisterSettingsAssemblyRequest struct {
	AssemblyIndex uint32
}

func (m RegisterSettingsAssemblyRequest) Marshal() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, m.AssemblyIndex)
	return buf
}

func UnmarshalRegisterSettingsAssemblyRequest(b []byte) (RegisterSettingsAssemblyRequest, bool) {
	if len(b) < 4 {
		return RegisterSettingsAssemblyRequest{}, false
	}
	return RegisterSettingsAssemblyRequest{AssemblyIndex: binary.LittleEndian.Uint32(b)}, true
}

// RegisterSharedConfigMemoryRegionRequest is sent target -> agent when a
// component's shared-config region needs to be attached by the agent too.
type RegisterSharedConfigMemoryRegionRequest struct {
	RegionType  uint32
	RegionIndex uint32
}

func (m RegisterSharedConfigMemoryRegionRequest) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], m.RegionType)
	binary.LittleEndian.PutUint32(buf[4:8], m.RegionIndex)
	return buf
}

func UnmarshalRegisterSharedConfigMemoryRegionRequest(b []byte) (RegisterSharedConfigMemoryRegionRequest, bool) {
	if len(b) < 8 {
		return RegisterSharedConfigMemoryRegionRequest{}, false
	}
	return RegisterSharedConfigMemoryRegionRequest{
		RegionType:  binary.LittleEndian.Uint32(b[0:4]),
		RegionIndex: binary.LittleEndian.Uint32(b[4:8]),
	}, true
}

// TerminateReaderThreadRequest is sent on each channel during shutdown so
// any reader blocked on the channel's semaphore wakes and observes the
// termination flag.
type TerminateReaderThreadRequest struct{}

func (TerminateReaderThreadRequest) Marshal() []byte { return nil }

func UnmarshalTerminateReaderThreadRequest(b []byte) (TerminateReaderThreadRequest, bool) {
	return TerminateReaderThreadRequest{}, true
}

// RegisteredSettingsAssemblyConfig is the record RegisterSettingsAssembly
// stores in the global dictionary.
type RegisteredSettingsAssemblyConfig struct {
	AssemblyIndex          uint32
	DispatchTableBaseIndex uint32
	FileName               string
}

// configTypeRegisteredSettingsAssembly identifies this record's shape
// within the global dictionary's own codegen-type-index space, which is
// separate from (and reserved differently than) a channel's dispatch
// table indices.
const configTypeRegisteredSettingsAssembly uint32 = 1

func (c *RegisteredSettingsAssemblyConfig) CodegenTypeIndex() uint32 {
	return configTypeRegisteredSettingsAssembly
}

func (c *RegisteredSettingsAssemblyConfig) Key() []byte { return []byte(c.FileName) }

func (c *RegisteredSettingsAssemblyConfig) Marshal() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], c.AssemblyIndex)
	binary.LittleEndian.PutUint32(buf[4:8], c.DispatchTableBaseIndex)
	return buf
}

func (c *RegisteredSettingsAssemblyConfig) Unmarshal(payload []byte) error {
	if len(payload) < 8 {
		return shm.ErrInvalidFrame
	}
	c.AssemblyIndex = binary.LittleEndian.Uint32(payload[0:4])
	c.DispatchTableBaseIndex = binary.LittleEndian.Uint32(payload[4:8])
	return nil
}
