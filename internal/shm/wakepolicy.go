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

import "go.uber.org/zap"

// InterProcessWakePolicy is the production WakePolicy: invalid frames are
// logged and swallowed rather than panicking, and readers sleep on a
// NamedSemaphore instead of busy-retrying.
type InterProcessWakePolicy struct {
	sem    *NamedSemaphore
	log    *zap.Logger
	label  string
}

// NewInterProcessWakePolicy builds a WakePolicy backed by sem. label
// identifies the channel in log output (e.g. "control", "feedback").
func NewInterProcessWakePolicy(sem *NamedSemaphore, label string, log *zap.Logger) *InterProcessWakePolicy {
	if log == nil {
		log = zap.NewNop()
	}
	return &InterProcessWakePolicy{sem: sem, log: log, label: label}
}

func (p *InterProcessWakePolicy) OnInvalidFrame(codegenTypeIdx uint32) {
	p.log.Warn("dropping invalid frame",
		zap.String("channel", p.label),
		zap.Uint32("codegen_type_index", codegenTypeIdx),
	)
}

func (p *InterProcessWakePolicy) NotifyExternalReader() error {
	return p.sem.Signal()
}

func (p *InterProcessWakePolicy) WaitForFrame() error {
	return p.sem.Wait()
}
