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

package fdexchange

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUnixPair(t *testing.T) (server, client *net.UnixConn) {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/fdexchange.sock"

	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	acceptCh := make(chan *net.UnixConn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			acceptCh <- nil
			return
		}
		acceptCh <- conn.(*net.UnixConn)
	}()

	c, err := net.Dial("unix", path)
	require.NoError(t, err)

	select {
	case server = <-acceptCh:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted")
	}
	require.NotNil(t, server)
	return server, c.(*net.UnixConn)
}

func TestSendFdThenRecvDeliversDescriptor(t *testing.T) {
	server, client := listenUnixPair(t)
	defer server.Close()
	defer client.Close()

	f, err := os.CreateTemp(t.TempDir(), "fdexchange-*")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("payload")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- SendFd(server, "global", int(f.Fd())) }()

	name, fd, ok, err := Recv(client)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "global", name)
	assert.GreaterOrEqual(t, fd, 0)

	require.NoError(t, <-done)

	recvFile := os.NewFile(uintptr(fd), "recv")
	defer recvFile.Close()
	buf := make([]byte, 7)
	n, err := recvFile.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))
}

func TestGetFdWithNoAncillaryReportsNotKnown(t *testing.T) {
	server, client := listenUnixPair(t)
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		name, fd, ok, err := Recv(server)
		if err != nil {
			done <- err
			return
		}
		_ = name
		_ = fd
		_ = ok
		done <- writeFrame(server, "", -1)
	}()

	fd, ok, err := GetFd(client, "sharedconfig")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, -1, fd)
	require.NoError(t, <-done)
}
