// Package server exposes the portal's HTTP surface: login and logout backed
// by the session manager, plus version and readiness probes. Routing is chi
// with the shared request-logging and panic-recovery middleware.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/httpx"
	commonmiddleware "github.com/web-cat/core/internal/common/middleware"
	"github.com/web-cat/core/internal/coresrv/authdomain"
	"github.com/web-cat/core/internal/coresrv/config"
	"github.com/web-cat/core/internal/coresrv/store"
	"github.com/web-cat/core/internal/coresrv/usersession"
	"github.com/web-cat/core/internal/coresrv/webcommon"
)

type WebcatServer struct {
	Router   *chi.Mux
	st       store.ObjectStore
	registry *authdomain.Registry
	sessions *usersession.Manager
}

func CreateNewServer(st store.ObjectStore, registry *authdomain.Registry, sessions *usersession.Manager) (*WebcatServer, error) {
	s := &WebcatServer{
		Router:   chi.NewRouter(),
		st:       st,
		registry: registry,
		sessions: sessions,
	}
	return s, nil
}

func (s *WebcatServer) MountHandlers() {
	s.Router.Use(commonmiddleware.RequestLogger)
	s.Router.Use(commonmiddleware.PanicHandler)
	if config.Config().HandleCORS {
		s.Router.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		}))
	}
	s.mountResourceHandlers(s.Router)
}

func (s *WebcatServer) mountResourceHandlers(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", httpx.WrapHandler(s.login))
		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)
			r.Post("/logout", httpx.WrapHandler(s.logout))
			r.Get("/session", httpx.WrapHandler(s.getSession))
		})
	})
	r.Get("/version", s.getVersion)
	r.Get("/ready", s.getReadiness)
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *WebcatServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Web-CAT Core Server: " + webcommon.ServerVersion,
		ApiVersion:    webcommon.ApiVersion,
	}
	httpx.SendJSON(r.Context(), w, http.StatusOK, rsp)
}

func (s *WebcatServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")

	if err := s.st.Ping(r.Context()); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("object store unreachable during readiness check")
		httpx.SendJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "object store unreachable",
		})
		return
	}
	httpx.SendJSON(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
