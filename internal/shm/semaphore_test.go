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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedSemaphoreSignalWakesWaiter(t *testing.T) {
	name := uniqueTestName("mlos-test-sem")
	sem, err := CreateOrOpenSemaphore(name)
	if err == ErrUnsupported {
		t.Skip("futex not supported on this platform")
	}
	require.NoError(t, err)
	defer sem.Close(true)

	done := make(chan error, 1)
	go func() {
		done <- sem.Wait()
	}()

	// Give the waiter a moment to enter the futex syscall before signaling.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, sem.Signal())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by Signal")
	}
}

func TestNamedSemaphoreOpenByNameShareTheSameWord(t *testing.T) {
	name := uniqueTestName("mlos-test-sem-shared")
	a, err := CreateOrOpenSemaphore(name)
	if err == ErrUnsupported {
		t.Skip("futex not supported on this platform")
	}
	require.NoError(t, err)
	defer a.Close(false)

	b, err := CreateOrOpenSemaphore(name)
	require.NoError(t, err)
	defer b.Close(true)

	assert.Equal(t, a.Name(), b.Name())

	done := make(chan error, 1)
	go func() { done <- a.Wait() }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Signal())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter on handle a was not woken by signal through handle b")
	}
}
