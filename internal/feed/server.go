package feed

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bowerhall/chatbridge/internal/logger"
)

// Handler returns a mux serving the feed on /ws.
func (b *Broadcaster) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	return mux
}

func (b *Broadcaster) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		// read-only feed, observers may live on any origin
		CheckOrigin: func(*http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("feed upgrade failed", "error", err)
		return
	}

	logger.Debug("feed client connected", "remote", r.RemoteAddr)
	c := b.AddClient(conn)

	go func() {
		defer func() {
			b.RemoveClient(c)
			logger.Debug("feed client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Serve runs the feed on addr until ctx is done.
func (b *Broadcaster) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		b.Close()
	}()

	logger.Info("feed listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
