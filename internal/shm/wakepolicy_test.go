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
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInterProcessWakePolicyLogsInvalidFrameInsteadOfPanicking(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	policy := NewInterProcessWakePolicy(nil, "control", log)

	assert.NotPanics(t, func() {
		policy.OnInvalidFrame(5)
	})

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "dropping invalid frame", entries[0].Message)
}

func TestPanicWakePolicyPanicsOnInvalidFrame(t *testing.T) {
	assert.Panics(t, func() {
		PanicWakePolicy{}.OnInvalidFrame(1)
	})
}

func TestPanicWakePolicyNeverBlocks(t *testing.T) {
	assert.NoError(t, PanicWakePolicy{}.WaitForFrame())
	assert.NoError(t, PanicWakePolicy{}.NotifyExternalReader())
}
