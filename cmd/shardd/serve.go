package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/themis-db/shardcore/internal/router"
	"github.com/themis-db/shardcore/internal/urn"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the shard router HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			dep, err := build()
			if err != nil {
				return err
			}
			return runServer(dep)
		},
	}
}

// localStore is a bare in-memory reference backing for the router's
// LocalExecutor hook (spec.md §9 deliberately leaves storage unbound) — it
// exists only so `serve` has something to dispatch local GET/PUT/DELETE to,
// not as the product's storage engine.
type localStore struct {
	data map[string]interface{}
}

func (s *localStore) handle(_ context.Context, method, path string, body interface{}) (interface{}, error) {
	key := strings.TrimPrefix(path, "/api/v1/data/")
	switch method {
	case "GET":
		v, ok := s.data[key]
		if !ok {
			return nil, fmt.Errorf("not found: %s", key)
		}
		return v, nil
	case "PUT":
		s.data[key] = body
		return true, nil
	case "DELETE":
		delete(s.data, key)
		return true, nil
	case "POST":
		return map[string]interface{}{"results": []interface{}{}}, nil
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
}

func runServer(dep *deployment) error {
	store := &localStore{data: make(map[string]interface{})}
	dep.router = router.New(dep.cfg.Router.ToRouterConfig(), dep.resolver, dep.executor, store.handle)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/data/", func(w http.ResponseWriter, r *http.Request) {
		u, err := urn.Parse(strings.TrimPrefix(r.URL.Path, "/api/v1/data/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ctx := r.Context()
		switch r.Method {
		case http.MethodGet:
			data, ok, err := dep.router.Get(ctx, u)
			if err != nil || !ok {
				http.Error(w, errString(err), http.StatusNotFound)
				return
			}
			writeJSON(w, data)
		case http.MethodPut:
			var body interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			ok, err := dep.router.Put(ctx, u, body)
			if err != nil || !ok {
				http.Error(w, errString(err), http.StatusBadGateway)
				return
			}
			writeJSON(w, map[string]bool{"ok": true})
		case http.MethodDelete:
			ok, err := dep.router.Del(ctx, u)
			if err != nil || !ok {
				http.Error(w, errString(err), http.StatusBadGateway)
				return
			}
			writeJSON(w, map[string]bool{"ok": true})
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		merged, err := dep.router.ExecuteQuery(r.Context(), body.Query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, merged)
	})

	mux.HandleFunc("/debug/router/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, dep.router.GetStatistics())
	})

	srv := &http.Server{Addr: dep.cfg.ListenAddr, Handler: mux}

	go func() {
		log.Infof("shardd listening on %s (shard_id=%s)", dep.cfg.ListenAddr, dep.cfg.ShardID)
		if err := srv.ListenAndServeTLS(dep.cfg.MTLS.CertPath, dep.cfg.MTLS.KeyPath); err != nil && err != http.ErrServerClosed {
			log.Errorf("server exited: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func errString(err error) string {
	if err == nil {
		return "not found"
	}
	return err.Error()
}
