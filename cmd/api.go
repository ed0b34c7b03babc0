package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/coterie-labs/experiment-console/internal/manager"
	"github.com/coterie-labs/experiment-console/internal/model"
)

// newRouter builds the HTTP API. Error taxonomy maps onto status codes:
// validation failures are 400, unknown ids 404, platform failures 502 with
// the platform's message passed through.
func newRouter(env *appEnv, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/experiments", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			exps, err := env.Manager.List(req.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, exps)
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var exp model.Experiment
			if err := json.NewDecoder(req.Body).Decode(&exp); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			created, err := env.Manager.Create(req.Context(), exp)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
		})

		r.Post("/publish", func(w http.ResponseWriter, req *http.Request) {
			var exp model.Experiment
			if err := json.NewDecoder(req.Body).Decode(&exp); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			published, err := env.Manager.PublishNew(req.Context(), exp)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, published)
		})

		r.Post("/import", func(w http.ResponseWriter, req *http.Request) {
			imported, err := env.Manager.ImportFromPlatform(req.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, imported)
		})

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				exp, err := env.Manager.Get(req.Context(), chi.URLParam(req, "id"))
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, exp)
			})

			r.Put("/", func(w http.ResponseWriter, req *http.Request) {
				var patch model.Patch
				if err := json.NewDecoder(req.Body).Decode(&patch); err != nil {
					writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
					return
				}
				updated, err := env.Manager.Update(req.Context(), chi.URLParam(req, "id"), patch)
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, updated)
			})

			r.Delete("/", func(w http.ResponseWriter, req *http.Request) {
				if err := env.Manager.Delete(req.Context(), chi.URLParam(req, "id")); err != nil {
					writeError(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})

			r.Post("/publish", func(w http.ResponseWriter, req *http.Request) {
				published, err := env.Manager.Publish(req.Context(), chi.URLParam(req, "id"))
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, published)
			})

			r.Post("/archive", func(w http.ResponseWriter, req *http.Request) {
				archived, err := env.Manager.Archive(req.Context(), chi.URLParam(req, "id"))
				if err != nil {
					writeError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, archived)
			})
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "experiment not found"})
	case manager.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case manager.IsUpstream(err):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
