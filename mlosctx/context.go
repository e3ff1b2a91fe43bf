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
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/mlos-shm/mlos-shm/internal/fdexchange"
	"github.com/mlos-shm/mlos-shm/internal/shm"
)

// MlosContext is the composition root. It owns the four regions and the
// two channels, and is the only type target code calls into. There is one
// MlosContext type with three constructors, each parameterized by a
// region-source capability: named shm + named semaphores (NewInterProcess),
// anonymous shm + fd-passing + file-watcher (NewAnonymousWithFdExchange), or
// named shm under the "Test_Mlos" prefix + no semaphore at all
// (NewInternalTest).
type MlosContext struct {
	regions *shm.Regions
	cfg     Config
	log     *zap.Logger

	controlPolicy  shm.WakePolicy
	feedbackPolicy shm.WakePolicy

	fdConn  *net.UnixConn
	watcher *fdexchange.FileWatcher

	mu                     sync.Mutex // serializes RegisterSettingsAssembly/RegisterComponentConfig (see DESIGN.md open question #1)
	sharedConfigAnnounced  bool
}

// Regions exposes the underlying region set for callers that need direct
// access (e.g. the debug CLI).
func (ctx *MlosContext) Regions() *shm.Regions { return ctx.regions }

// NewInterProcess builds a target-side context backed by named shared
// memory and named semaphores: the default, fully inter-process
// configuration.
func NewInterProcess(opts ...Option) (*MlosContext, error) {
	cfg := buildConfig(opts)

	controlSem, err := shm.CreateOrOpenSemaphore("mlos_control_channel_event")
	if err != nil {
		return nil, fmt.Errorf("mlosctx: control semaphore: %w", err)
	}
	feedbackSem, err := shm.CreateOrOpenSemaphore("mlos_feedback_channel_event")
	if err != nil {
		return nil, fmt.Errorf("mlosctx: feedback semaphore: %w", err)
	}

	controlPolicy := shm.NewInterProcessWakePolicy(controlSem, "control", cfg.Logger)
	feedbackPolicy := shm.NewInterProcessWakePolicy(feedbackSem, "feedback", cfg.Logger)

	regions, err := bootstrapNamed(cfg, controlPolicy, feedbackPolicy)
	if err != nil {
		return nil, err
	}

	return &MlosContext{
		regions:        regions,
		cfg:            cfg,
		log:            cfg.Logger,
		controlPolicy:  controlPolicy,
		feedbackPolicy: feedbackPolicy,
	}, nil
}

func bootstrapNamed(cfg Config, controlPolicy, feedbackPolicy shm.WakePolicy) (*shm.Regions, error) {
	regions, err := shm.Bootstrap(shm.BootstrapOptions{
		NamePrefix:       cfg.NamePrefix,
		GlobalRegionSize: cfg.GlobalRegionSize,
		ChannelSize:      cfg.ChannelSize,
		SharedConfigSize: cfg.SharedConfigSize,
		DictionarySlots:  cfg.DictionarySlots,
		ControlPolicy:    controlPolicy,
		FeedbackPolicy:   feedbackPolicy,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	shm.InitializeChannel(regions.ControlChannel)
	shm.InitializeChannel(regions.FeedbackChannel)
	return regions, nil
}

// NewAnonymousWithFdExchange builds a target-side context backed by
// anonymous (unnamed) shared memory, handing its descriptors to the agent
// over FdExchange as the agent announces itself via the FileWatcher. Wake
// signaling still uses named semaphores: semaphores are
// independently-named OS objects, not shared-memory regions, so they need
// no fd-passing of their own.
//
// Connect failures here are non-fatal: the target keeps its regions
// anonymous and the watcher retries when the agent reappears.
// context.Background() controls the watcher goroutine's lifetime; call
// Close to stop it.
func NewAnonymousWithFdExchange(opts ...Option) (*MlosContext, error) {
	cfg := buildConfig(opts)
	if cfg.FdExchangeDir == "" {
		cfg.FdExchangeDir = fdexchange.WatchDir
	}

	controlSem, err := shm.CreateOrOpenSemaphore("mlos_control_channel_event")
	if err != nil {
		return nil, fmt.Errorf("mlosctx: control semaphore: %w", err)
	}
	feedbackSem, err := shm.CreateOrOpenSemaphore("mlos_feedback_channel_event")
	if err != nil {
		return nil, fmt.Errorf("mlosctx: feedback semaphore: %w", err)
	}
	controlPolicy := shm.NewInterProcessWakePolicy(controlSem, "control", cfg.Logger)
	feedbackPolicy := shm.NewInterProcessWakePolicy(feedbackSem, "feedback", cfg.Logger)

	regions, err := bootstrapAnonymous(cfg, controlPolicy, feedbackPolicy)
	if err != nil {
		return nil, err
	}

	watcher, err := fdexchange.NewFileWatcher(cfg.FdExchangeDir, cfg.Logger)
	if err != nil {
		cfg.Logger.Warn("fdexchange watcher unavailable; regions stay anonymous", zap.Error(err))
		watcher = nil
	}

	ctx := &MlosContext{
		regions:        regions,
		cfg:            cfg,
		log:            cfg.Logger,
		controlPolicy:  controlPolicy,
		feedbackPolicy: feedbackPolicy,
		watcher:        watcher,
	}

	if watcher != nil {
		go watcher.Run(context.Background(), func() { ctx.handleAgentUp() })
	}

	return ctx, nil
}

func bootstrapAnonymous(cfg Config, controlPolicy, feedbackPolicy shm.WakePolicy) (*shm.Regions, error) {
	regions, err := shm.BootstrapAnonymous(shm.BootstrapOptions{
		GlobalRegionSize: cfg.GlobalRegionSize,
		ChannelSize:      cfg.ChannelSize,
		SharedConfigSize: cfg.SharedConfigSize,
		DictionarySlots:  cfg.DictionarySlots,
		ControlPolicy:    controlPolicy,
		FeedbackPolicy:   feedbackPolicy,
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	shm.InitializeChannel(regions.ControlChannel)
	shm.InitializeChannel(regions.FeedbackChannel)
	return regions, nil
}

// handleAgentUp is the FileWatcher callback: hand every region's
// descriptor to whatever agent just announced itself.
func (ctx *MlosContext) handleAgentUp() {
	conn, err := fdexchange.Dial()
	if err != nil {
		ctx.log.Warn("fdexchange dial failed; will retry on next watcher event", zap.Error(err))
		return
	}
	defer conn.Close()

	regionFds := map[string]int{
		"global":       ctx.regions.GlobalMap.Fd(),
		"control":      ctx.regions.ControlMap.Fd(),
		"feedback":     ctx.regions.FeedbackMap.Fd(),
		"sharedconfig": ctx.regions.SharedConfigMap.Fd(),
	}
	for name, fd := range regionFds {
		if fd < 0 {
			continue
		}
		if err := fdexchange.SendFd(conn, name, fd); err != nil {
			ctx.log.Warn("sending region fd to agent failed", zap.String("region", name), zap.Error(err))
		}
	}
	ctx.log.Info("handed region descriptors to agent")
}

// NewInternalTest builds an in-process, single-address-space context for
// tests: named shm under the "Test_Mlos" prefix (unless overridden by
// WithNamePrefix) with no semaphore. Invalid frames panic instead of
// being logged and swallowed, so a test with a wrong dispatch table
// registration fails loudly.
func NewInternalTest(opts ...Option) (*MlosContext, error) {
	opts = append([]Option{WithNamePrefix("Test_Mlos")}, opts...)
	cfg := buildConfig(opts)

	regions, err := shm.Bootstrap(shm.BootstrapOptions{
		NamePrefix:       cfg.NamePrefix,
		GlobalRegionSize: cfg.GlobalRegionSize,
		ChannelSize:      cfg.ChannelSize,
		SharedConfigSize: cfg.SharedConfigSize,
		DictionarySlots:  cfg.DictionarySlots,
		ControlPolicy:    shm.PanicWakePolicy{},
		FeedbackPolicy:   shm.PanicWakePolicy{},
		Logger:           cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	shm.InitializeChannel(regions.ControlChannel)
	shm.InitializeChannel(regions.FeedbackChannel)

	return &MlosContext{
		regions:        regions,
		cfg:            cfg,
		log:            cfg.Logger,
		controlPolicy:  shm.PanicWakePolicy{},
		feedbackPolicy: shm.PanicWakePolicy{},
	}, nil
}

// RegisterSettingsAssembly allocates a RegisteredSettingsAssemblyConfig in
// the global dictionary, bumps registered_settings_assembly_count, and
// tells the agent to load it.
func (ctx *MlosContext) RegisterSettingsAssembly(fileName string, dispatchTableBaseIndex uint32) (uint32, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	assemblyIndex := ctx.regions.Global.NextSettingsAssemblyIndex()
	rec := &RegisteredSettingsAssemblyConfig{
		AssemblyIndex:          assemblyIndex,
		DispatchTableBaseIndex: dispatchTableBaseIndex,
		FileName:               fileName,
	}
	if _, _, err := ctx.regions.Global.Dictionary.CreateOrUpdate(rec); err != nil {
		return 0, err
	}

	req := RegisterSettingsAssemblyRequest{AssemblyIndex: assemblyIndex}
	if err := ctx.SendControl(MsgTypeRegisterSettingsAssemblyRequest, hashRegisterSettingsAssemblyRequest, req.Marshal()); err != nil && err != shm.ErrChannelTerminated {
		return 0, err
	}
	ctx.log.Info("registered settings assembly", zap.String("file", fileName), zap.Uint32("assembly_index", assemblyIndex))
	return assemblyIndex, nil
}

// RegisterComponentConfig creates or updates rec's entry in the
// shared-config dictionary, binding rec to the shared record (rec is
// mutated in place if a record already existed). The first call on a
// given context also announces the shared-config region to the agent, so
// an agent that only just learned of this context's regions knows there
// is a dictionary there worth attaching.
func (ctx *MlosContext) RegisterComponentConfig(rec shm.ConfigRecord) (offset uint64, created bool, err error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	off, result, err := ctx.regions.SharedConfig.CreateOrUpdate(rec)
	if err != nil {
		return 0, false, err
	}

	if !ctx.sharedConfigAnnounced {
		req := RegisterSharedConfigMemoryRegionRequest{
			RegionType:  uint32(shm.RegionTypeSharedConfig),
			RegionIndex: 0,
		}
		if err := ctx.SendControl(MsgTypeRegisterSharedConfigMemoryRegionRequest, hashRegisterSharedConfigMemoryRegionRequest, req.Marshal()); err != nil && err != shm.ErrChannelTerminated {
			return off, result == shm.Created, err
		}
		ctx.sharedConfigAnnounced = true
	}

	return off, result == shm.Created, nil
}

// SendControl sends a message on the control channel.
func (ctx *MlosContext) SendControl(codegenTypeIdx uint32, codegenTypeHash uint64, payload []byte) error {
	return ctx.regions.ControlChannel.Send(codegenTypeIdx, codegenTypeHash, payload)
}

// SendTelemetry is the same channel as SendControl, kept as a distinct
// method so call sites read as telemetry traffic rather than control
// traffic.
func (ctx *MlosContext) SendTelemetry(codegenTypeIdx uint32, codegenTypeHash uint64, payload []byte) error {
	return ctx.regions.ControlChannel.Send(codegenTypeIdx, codegenTypeHash, payload)
}

// SendFeedback sends a message on the feedback channel.
func (ctx *MlosContext) SendFeedback(codegenTypeIdx uint32, codegenTypeHash uint64, payload []byte) error {
	return ctx.regions.FeedbackChannel.Send(codegenTypeIdx, codegenTypeHash, payload)
}

// TerminateControlChannel sets the control channel's terminate flag, sends
// a TerminateReaderThreadRequest, then directly wakes every reader
// currently blocked on the semaphore by signaling once per waiter.
func (ctx *MlosContext) TerminateControlChannel() error {
	return ctx.terminateChannel(ctx.regions.ControlChannel, ctx.regions.Global.ControlChannelSync(), ctx.controlPolicy)
}

// TerminateFeedbackChannel does the same as TerminateControlChannel, then
// spin-waits until active_reader_count == 0.
func (ctx *MlosContext) TerminateFeedbackChannel() error {
	if err := ctx.terminateChannel(ctx.regions.FeedbackChannel, ctx.regions.Global.FeedbackChannelSync(), ctx.feedbackPolicy); err != nil {
		return err
	}
	sync := ctx.regions.Global.FeedbackChannelSync()
	for sync.ActiveReaderCount() != 0 {
		// bounded in practice by how long a reader's in-flight dispatch takes to return.
	}
	return nil
}

func (ctx *MlosContext) terminateChannel(channel *shm.SharedChannel, sync *shm.ChannelSync, policy shm.WakePolicy) error {
	sync.SetTerminated()

	req := TerminateReaderThreadRequest{}
	if err := channel.Send(MsgTypeTerminateReaderThreadRequest, hashTerminateReaderThreadRequest, req.Marshal()); err != nil && err != shm.ErrChannelTerminated {
		return err
	}

	waiters := sync.ReadersInWaitCount()
	for i := uint32(0); i < waiters; i++ {
		if err := policy.NotifyExternalReader(); err != nil {
			return err
		}
	}
	return nil
}

// Close detaches from the region set (and, if this is the last attached
// process, optionally unlinks the backing names) and stops any fd-exchange
// watcher.
func (ctx *MlosContext) Close(cleanupIfLast bool) error {
	if ctx.watcher != nil {
		ctx.watcher.Close()
	}
	if ctx.fdConn != nil {
		ctx.fdConn.Close()
	}
	return ctx.regions.Detach(cleanupIfLast)
}
