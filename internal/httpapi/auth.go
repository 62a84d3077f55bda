package httpapi

import (
	"context"
	"net/http"
	"strings"

	"qms/patient-queue/internal/identity"
)

type viewerContextKey struct{}

// AuthMiddleware resolves the bearer token into a viewer for every
// non-public endpoint.
func AuthMiddleware(issuer *identity.Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing token")
			return
		}
		viewer, err := issuer.Parse(token)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withViewer(r.Context(), viewer)))
	})
}

func withViewer(ctx context.Context, viewer identity.Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey{}, viewer)
}

func viewerFromContext(ctx context.Context) (identity.Viewer, bool) {
	viewer, ok := ctx.Value(viewerContextKey{}).(identity.Viewer)
	return viewer, ok
}

// tokenFromRequest also accepts a token query parameter, since browser
// SockJS transports cannot set headers.
func tokenFromRequest(r *http.Request) string {
	if r == nil {
		return ""
	}
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	case "/api/login":
		return r.Method == http.MethodPost
	}
	if strings.HasPrefix(r.URL.Path, "/realtime/") {
		return true
	}
	return r.Method == http.MethodOptions
}
