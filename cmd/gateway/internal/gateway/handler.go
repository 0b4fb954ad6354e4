package gateway

import (
	"net/http"

	"github.com/gobwas/ws"
	"go.uber.org/zap"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/hub"
)

// Handler upgrades the request to a websocket and attaches the connection to the hub.
func Handler(h *hub.Hub, logger *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			logger.Debug("Websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(conn, h, logger, opts)
		client.Start()
	}
}
