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
	"unsafe"

	"go.uber.org/zap"
)

// Standard region names. namePrefix
// is either "Host_Mlos" (inter-process) or "Test_Mlos" (in-process test).
const (
	globalRegionSuffix        = ".GlobalMemory"
	controlChannelSuffix      = ".ControlChannel"
	feedbackChannelSuffix     = ".FeedbackChannel"
	sharedConfigRegionSuffix  = ".Config.SharedMemory"
)

// DefaultRegionSize is the default size, in bytes, of the global region,
// each channel buffer, and the shared-config region.
const DefaultRegionSize = 64 * 1024

// Regions bundles the four standard shared-memory regions plus the derived
// views (global bookkeeping, the two channels) that bootstrap produces.
type Regions struct {
	Global        *GlobalRegion
	GlobalMap     *SharedMemoryMap
	ControlMap    *SharedMemoryMap
	FeedbackMap   *SharedMemoryMap
	SharedConfig  *SharedConfigDictionary
	SharedConfigMap *SharedMemoryMap

	ControlChannel  *SharedChannel
	FeedbackChannel *SharedChannel
}

// BootstrapOptions configures region names and sizes for Bootstrap.
type BootstrapOptions struct {
	NamePrefix        string
	GlobalRegionSize  uint64
	ChannelSize       uint64
	SharedConfigSize  uint64
	DictionarySlots   int
	ControlPolicy     WakePolicy
	FeedbackPolicy    WakePolicy
	Logger            *zap.Logger
}

func (o *BootstrapOptions) fillDefaults() {
	if o.GlobalRegionSize == 0 {
		o.GlobalRegionSize = DefaultRegionSize
	}
	if o.ChannelSize == 0 {
		o.ChannelSize = DefaultRegionSize
	}
	if o.SharedConfigSize == 0 {
		o.SharedConfigSize = DefaultRegionSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Bootstrap creates or opens each of the four standard regions, in a
// fixed order (global first, since the channels' ChannelSync blocks live
// inside it), initializing any region this call created and attaching to
// any it merely opened, then bumping the global attached-process counter.
func Bootstrap(opts BootstrapOptions) (*Regions, error) {
	opts.fillDefaults()
	log := opts.Logger

	globalMap, globalCreated, err := CreateOrOpen(opts.NamePrefix+globalRegionSuffix, opts.GlobalRegionSize)
	if err != nil {
		return nil, err
	}
	var global *GlobalRegion
	if globalCreated {
		log.Info("creating global region", zap.String("region", opts.NamePrefix+globalRegionSuffix), zap.Uint64("size", opts.GlobalRegionSize))
		global, err = InitGlobalRegion(globalMap.Mem, opts.DictionarySlots)
	} else {
		log.Info("attaching to existing global region", zap.String("region", opts.NamePrefix+globalRegionSuffix), zap.Uint64("size", opts.GlobalRegionSize))
		global, err = OpenGlobalRegion(globalMap.Mem)
	}
	if err != nil {
		return nil, err
	}

	controlMap, controlCreated, err := CreateOrOpen(opts.NamePrefix+controlChannelSuffix, opts.ChannelSize)
	if err != nil {
		return nil, err
	}
	logRegionEvent(log, opts.NamePrefix+controlChannelSuffix, controlCreated)
	if controlCreated {
		InitRegionHeader(unsafe.Pointer(&controlMap.Mem[0]), RegionID{Type: RegionTypeControlChannel}, controlMap.Size(), 0)
	}

	feedbackMap, feedbackCreated, err := CreateOrOpen(opts.NamePrefix+feedbackChannelSuffix, opts.ChannelSize)
	if err != nil {
		return nil, err
	}
	logRegionEvent(log, opts.NamePrefix+feedbackChannelSuffix, feedbackCreated)
	if feedbackCreated {
		InitRegionHeader(unsafe.Pointer(&feedbackMap.Mem[0]), RegionID{Type: RegionTypeFeedbackChannel}, feedbackMap.Size(), 0)
	}

	sharedConfigMap, sharedConfigCreated, err := CreateOrOpen(opts.NamePrefix+sharedConfigRegionSuffix, opts.SharedConfigSize)
	if err != nil {
		return nil, err
	}
	var sharedConfigDict *SharedConfigDictionary
	if sharedConfigCreated {
		InitRegionHeader(unsafe.Pointer(&sharedConfigMap.Mem[0]), RegionID{Type: RegionTypeSharedConfig}, sharedConfigMap.Size(), 0)
		sharedConfigDict, err = NewSharedConfigDictionary(sharedConfigMap.Mem[regionHeaderSize:], opts.DictionarySlots)
	} else {
		sharedConfigDict, err = OpenSharedConfigDictionary(sharedConfigMap.Mem[regionHeaderSize:])
	}
	if err != nil {
		return nil, err
	}

	controlPolicy := opts.ControlPolicy
	if controlPolicy == nil {
		controlPolicy = PanicWakePolicy{}
	}
	feedbackPolicy := opts.FeedbackPolicy
	if feedbackPolicy == nil {
		feedbackPolicy = PanicWakePolicy{}
	}

	controlChannel, err := NewSharedChannel(global.ControlChannelSync(), controlMap.Mem[regionHeaderSize:], controlPolicy)
	if err != nil {
		return nil, err
	}
	feedbackChannel, err := NewSharedChannel(global.FeedbackChannelSync(), feedbackMap.Mem[regionHeaderSize:], feedbackPolicy)
	if err != nil {
		return nil, err
	}

	attached := global.IncrementAttachedProcesses()
	log.Info("attached to region set", zap.Uint32("attached_process_count", attached))

	return &Regions{
		Global:          global,
		GlobalMap:       globalMap,
		ControlMap:      controlMap,
		FeedbackMap:     feedbackMap,
		SharedConfig:    sharedConfigDict,
		SharedConfigMap: sharedConfigMap,
		ControlChannel:  controlChannel,
		FeedbackChannel: feedbackChannel,
	}, nil
}

// BootstrapAnonymous lays out the same four regions as Bootstrap, but
// backed by create_anonymous instead of create_or_open, for the "no shared
// filesystem namespace" configuration that hands descriptors to an agent
// via FdExchange instead. Since there is nothing to attach to, every
// region is always freshly created.
func BootstrapAnonymous(opts BootstrapOptions) (*Regions, error) {
	opts.fillDefaults()
	log := opts.Logger

	globalMap, err := CreateAnonymous("global", opts.GlobalRegionSize)
	if err != nil {
		return nil, err
	}
	global, err := InitGlobalRegion(globalMap.Mem, opts.DictionarySlots)
	if err != nil {
		return nil, err
	}
	log.Info("created anonymous global region", zap.Uint64("size", opts.GlobalRegionSize))

	controlMap, err := CreateAnonymous("control", opts.ChannelSize)
	if err != nil {
		return nil, err
	}
	InitRegionHeader(unsafe.Pointer(&controlMap.Mem[0]), RegionID{Type: RegionTypeControlChannel}, controlMap.Size(), 0)

	feedbackMap, err := CreateAnonymous("feedback", opts.ChannelSize)
	if err != nil {
		return nil, err
	}
	InitRegionHeader(unsafe.Pointer(&feedbackMap.Mem[0]), RegionID{Type: RegionTypeFeedbackChannel}, feedbackMap.Size(), 0)

	sharedConfigMap, err := CreateAnonymous("sharedconfig", opts.SharedConfigSize)
	if err != nil {
		return nil, err
	}
	InitRegionHeader(unsafe.Pointer(&sharedConfigMap.Mem[0]), RegionID{Type: RegionTypeSharedConfig}, sharedConfigMap.Size(), 0)
	sharedConfigDict, err := NewSharedConfigDictionary(sharedConfigMap.Mem[regionHeaderSize:], opts.DictionarySlots)
	if err != nil {
		return nil, err
	}

	controlPolicy := opts.ControlPolicy
	if controlPolicy == nil {
		controlPolicy = PanicWakePolicy{}
	}
	feedbackPolicy := opts.FeedbackPolicy
	if feedbackPolicy == nil {
		feedbackPolicy = PanicWakePolicy{}
	}

	controlChannel, err := NewSharedChannel(global.ControlChannelSync(), controlMap.Mem[regionHeaderSize:], controlPolicy)
	if err != nil {
		return nil, err
	}
	feedbackChannel, err := NewSharedChannel(global.FeedbackChannelSync(), feedbackMap.Mem[regionHeaderSize:], feedbackPolicy)
	if err != nil {
		return nil, err
	}

	global.IncrementAttachedProcesses()

	return &Regions{
		Global:          global,
		GlobalMap:       globalMap,
		ControlMap:      controlMap,
		FeedbackMap:     feedbackMap,
		SharedConfig:    sharedConfigDict,
		SharedConfigMap: sharedConfigMap,
		ControlChannel:  controlChannel,
		FeedbackChannel: feedbackChannel,
	}, nil
}

// Detach decrements the attached-process counter and, if it reaches zero,
// the caller is responsible for deciding whether to unlink: the last
// detacher optionally unlinks.
func (r *Regions) Detach(cleanupIfLast bool) error {
	remaining := r.Global.DecrementAttachedProcesses()
	last := remaining == 0
	if err := r.GlobalMap.Close(last && cleanupIfLast); err != nil {
		return err
	}
	if err := r.ControlMap.Close(last && cleanupIfLast); err != nil {
		return err
	}
	if err := r.FeedbackMap.Close(last && cleanupIfLast); err != nil {
		return err
	}
	return r.SharedConfigMap.Close(last && cleanupIfLast)
}

func logRegionEvent(log *zap.Logger, name string, created bool) {
	if created {
		log.Info("creating region", zap.String("region", name))
	} else {
		log.Info("attaching to existing region", zap.String("region", name))
	}
}
