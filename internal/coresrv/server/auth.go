package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web-cat/core/internal/common/httpx"
	"github.com/web-cat/core/internal/coresrv/webcommon"
)

type loginRequest struct {
	Domain   string `json:"domain"`
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserName  string    `json:"userName"`
	Domain    string    `json:"domain"`
}

func (s *WebcatServer) login(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	var req loginRequest
	if err := httpx.ReadRequest(r, &req); err != nil {
		return nil, ErrBadRequest.Err(err)
	}
	if req.UserName == "" || req.Password == "" {
		return nil, ErrBadRequest.Msg("userName and password are required")
	}

	session, err := s.sessions.Login(ctx, req.Domain, req.UserName, req.Password)
	if err != nil {
		return nil, err
	}

	token, expiry, err := createSessionToken(ctx, session)
	if err != nil {
		return nil, err
	}

	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: &loginResponse{
			Token:     token,
			ExpiresAt: expiry,
			UserName:  session.User().UserName(),
			Domain:    session.Domain().Name(),
		},
	}, nil
}

func (s *WebcatServer) logout(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()
	sc := webcommon.GetSessionContext(ctx)
	if sc == nil {
		return nil, ErrMissingToken
	}
	session, err := s.sessions.Get(sc.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Logout(ctx, session); err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   map[string]string{"status": "logged out"},
	}, nil
}

type sessionResponse struct {
	UserName  string    `json:"userName"`
	Domain    string    `json:"domain"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// getSession reports the authenticated user and extends the login session,
// standing in for the end-of-request sleep of the page layer.
func (s *WebcatServer) getSession(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()
	sc := webcommon.GetSessionContext(ctx)
	if sc == nil {
		return nil, ErrMissingToken
	}
	session, err := s.sessions.Get(sc.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Sleep(ctx, session); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to extend login session")
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response: &sessionResponse{
			UserName:  session.User().UserName(),
			Domain:    session.Domain().Name(),
			ExpiresAt: time.Now().Add(s.sessions.Timeout()),
		},
	}, nil
}

// sessionMiddleware resolves the bearer token into session and user context
// for downstream handlers.
func (s *WebcatServer) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := bearerToken(r)
		if token == "" {
			httpx.SendError(w, ErrMissingToken)
			return
		}
		sid, err := parseSessionToken(token)
		if err != nil {
			httpx.SendError(w, ErrInvalidToken)
			return
		}
		session, err := s.sessions.Get(sid)
		if err != nil {
			httpx.SendError(w, ErrInvalidToken.Msg("no active session for token"))
			return
		}

		ctx = webcommon.WithSessionContext(ctx, &webcommon.SessionContext{SessionID: sid})
		ctx = webcommon.WithUserContext(ctx, &webcommon.UserContext{
			UserID:   session.User().ID(),
			UserName: session.User().UserName(),
		})
		ctx = webcommon.WithAuthDomain(ctx, session.Domain().PropertyName)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
