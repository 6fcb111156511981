package server

import (
	"chat_relay/internal/config"
	"chat_relay/internal/model"
	"chat_relay/internal/utils/log"
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type (
	// IdentityBinder resolves the handshake Cookie header into an identity.
	IdentityBinder interface {
		Bind(ctx context.Context, cookieHeader string) (model.Identity, error)
	}

	HttpServer struct {
		cfg      *config.Config
		binder   IdentityBinder
		registry *Registry
		presence *Presence
		relay    *Relay
		upgrader websocket.Upgrader
		http     *http.Server
	}
)

func NewHttpServer(cfg *config.Config, binder IdentityBinder, store MessageStore, blobs BlobStore) *HttpServer {
	registry := NewRegistry()
	presence := NewPresence(registry)
	return &HttpServer{
		cfg:      cfg,
		binder:   binder,
		registry: registry,
		presence: presence,
		relay:    NewRelay(registry, presence, store, blobs),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}
}

func (s *HttpServer) Run() error {
	s.http = &http.Server{
		Addr:    s.cfg.ListenAddr,
		Handler: s.Handler(),
	}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *HttpServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", blobFileServer(s.cfg.UploadDir)))
	return r
}

// Shutdown closes every live connection and stops the HTTP listener.
func (s *HttpServer) Shutdown(ctx context.Context) error {
	for _, c := range s.registry.Conns() {
		s.registry.Evict(c)
		c.close()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// HandleWS binds the caller's credential, upgrades, admits the connection,
// and runs its read loop. A failed binding refuses the upgrade outright.
func (s *HttpServer) HandleWS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, err := s.binder.Bind(r.Context(), r.Header.Get("Cookie"))
		if err != nil {
			log.Debug("binding rejected", zap.Error(err))
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		sock, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("upgrade failed", zap.Error(err))
			return
		}

		conn := newConn(sock, ident, s.cfg.SendBuffer)
		sock.SetPongHandler(func(string) error {
			conn.signalPong()
			return nil
		})

		s.registry.Admit(conn)
		go conn.writePump(s.cfg.PingInterval, s.cfg.PongDeadline, func() {
			s.drop(conn)
		})
		s.presence.Refresh()

		log.Info("connection admitted",
			zap.String("userId", ident.ID),
			zap.String("username", ident.DisplayName))
		s.readPump(conn, sock)
	}
}

func (s *HttpServer) readPump(c *Conn, sock *websocket.Conn) {
	defer s.drop(c)

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			log.Debug("connection closed", zap.String("userId", c.identity.ID), zap.Error(err))
			return
		}

		var env model.MessageEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug("ignoring unreadable frame", zap.Error(err))
			continue
		}

		if err := s.relay.Relay(context.Background(), c, env); err != nil {
			// fire-and-forget: the sender is not notified
			log.Error("relay failed", zap.String("sender", c.identity.ID), zap.Error(err))
		}
	}
}

// drop evicts and closes a connection. The registry reports whether this
// call actually removed it, so overlapping close paths produce exactly one
// presence refresh.
func (s *HttpServer) drop(c *Conn) {
	evicted := s.registry.Evict(c)
	c.close()
	if evicted {
		s.presence.Refresh()
	}
}

// blobFileServer serves stored blobs without directory listings.
func blobFileServer(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || r.URL.Path == "/" {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
