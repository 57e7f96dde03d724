package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/rihuaaaaa/laura-db/pkg/storage"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AdminServer exposes a small REST and WebSocket diagnostics surface over
// an Engine: buffer pool and hash index stats, manual flush controls, and
// a stream of periodic stats snapshots for anything watching /ws/stats.
type AdminServer struct {
	engine  *Engine
	router  *chi.Mux
	httpSrv *http.Server

	wsMu   sync.Mutex
	wsConn map[*websocket.Conn]struct{}
}

// NewAdminServer builds the router; call Start to actually listen.
func NewAdminServer(eng *Engine, addr string) *AdminServer {
	s := &AdminServer{
		engine: eng,
		router: chi.NewRouter(),
		wsConn: make(map[*websocket.Conn]struct{}),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	s.router.Get("/stats", s.handleStats)
	s.router.Get("/hashindex", s.handleHashIndex)
	s.router.Post("/pages/{id}/flush", s.handleFlushPage)
	s.router.Post("/flush-all", s.handleFlushAll)
	s.router.Get("/ws/stats", s.handleStatsStream)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the underlying chi router, e.g. to mount GraphQL onto it.
func (s *AdminServer) Router() *chi.Mux { return s.router }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *AdminServer) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *AdminServer) handleHashIndex(w http.ResponseWriter, r *http.Request) {
	depth, err := s.engine.HashIndex().GlobalDepth()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"global_depth": depth})
}

func (s *AdminServer) handleFlushPage(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid page id"})
		return
	}
	if err := s.engine.DataPool().Flush(storage.PageID(id)); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (s *AdminServer) handleFlushAll(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DataPool().FlushAll(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// handleStatsStream upgrades to a WebSocket and pushes a stats snapshot
// every few seconds until the client disconnects.
func (s *AdminServer) handleStatsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("adminserver: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMu.Lock()
	s.wsConn[conn] = struct{}{}
	s.wsMu.Unlock()
	defer func() {
		s.wsMu.Lock()
		delete(s.wsConn, conn)
		s.wsMu.Unlock()
	}()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	if err := conn.WriteJSON(s.engine.Stats()); err != nil {
		return
	}
	for range ticker.C {
		if err := conn.WriteJSON(s.engine.Stats()); err != nil {
			return
		}
	}
}

// Start listens and serves until the context is cancelled.
func (s *AdminServer) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("adminserver: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully closes the admin server and any open WebSocket
// connections.
func (s *AdminServer) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.wsMu.Lock()
	for conn := range s.wsConn {
		conn.Close()
	}
	s.wsMu.Unlock()

	return s.httpSrv.Shutdown(shutdownCtx)
}
