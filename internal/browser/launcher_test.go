package browser

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgsHeadless(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9220, ProfileDir: "/tmp/p", Headless: true})
	args := l.args()

	assert.Contains(t, args, "--remote-debugging-port=9220")
	assert.Contains(t, args, "--user-data-dir=/tmp/p")
	assert.Contains(t, args, "--window-size=1280,800")
	assert.Contains(t, args, "--headless=new")
	assert.Equal(t, "about:blank", args[len(args)-1])
}

func TestArgsHeaded(t *testing.T) {
	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: 9220, WindowSize: "800,600"})
	args := l.args()

	assert.NotContains(t, args, "--headless=new")
	assert.Contains(t, args, "--window-size=800,600")
	assert.Equal(t, "http://127.0.0.1:9220", l.CDPURL())
}

func TestIsPortInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	assert.True(t, isPortInUse("127.0.0.1", port))

	l := NewLauncher(Config{CDPAddress: "127.0.0.1", CDPPort: port, Binary: "/nonexistent"})
	require.NoError(t, l.Launch(context.Background()))
	assert.False(t, l.Running())

	ln.Close()
	assert.False(t, isPortInUse("127.0.0.1", port))
}
