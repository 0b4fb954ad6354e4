package gateway_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/gateway"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/hub"
)

func newTestClient(t *testing.T, buffer int) *gateway.ClientAdapter {
	t.Helper()
	server, peer := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		peer.Close()
	})

	opts := gateway.DefaultOptions()
	opts.SendBuffer = buffer
	h := hub.NewHub(nil, zap.NewNop())
	return gateway.NewClient(server, h, zap.NewNop(), opts)
}

func TestClient_SendIsNonBlocking(t *testing.T) {
	c := newTestClient(t, 2)

	assert.NoError(t, c.Send([]byte(`{}`)))
	assert.NoError(t, c.Send([]byte(`{}`)))
	assert.ErrorIs(t, c.Send([]byte(`{}`)), gateway.ErrSendBufferFull)
}

func TestClient_SendAfterClose(t *testing.T) {
	c := newTestClient(t, 4)

	c.Close()
	c.Close() // second close is harmless

	assert.ErrorIs(t, c.Send([]byte(`{}`)), gateway.ErrClientClosed)
}

func TestClient_UniqueIDs(t *testing.T) {
	a := newTestClient(t, 1)
	b := newTestClient(t, 1)

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
