package router

import (
	"net/http"

	"github.com/cursorqr/backend/internal/handlers"
	"github.com/cursorqr/backend/internal/middleware"
)

// New returns the /v1 API handler.
// Middleware chain: SessionAuth -> (AdminOnly on /v1/admin only) -> handler.
func New(
	verifier middleware.TokenVerifier,
	adminLookup middleware.AdminLookup,
	accountH *handlers.AccountHandler,
	qrH *handlers.QRHandler,
	adminH *handlers.AdminHandler,
) http.Handler {
	mux := http.NewServeMux()

	auth := middleware.SessionAuth(verifier)
	admin := middleware.AdminOnly(adminLookup)

	mux.HandleFunc("GET /v1/costs", handlers.ListCosts)

	mux.Handle("GET /v1/account/me", auth(http.HandlerFunc(accountH.GetMe)))
	mux.Handle("POST /v1/account/refresh", auth(http.HandlerFunc(accountH.Refresh)))
	mux.Handle("GET /v1/account/refresh/wait", auth(http.HandlerFunc(accountH.WaitRefresh)))

	mux.Handle("POST /v1/qrcodes", auth(http.HandlerFunc(qrH.CreateQRCode)))
	mux.Handle("GET /v1/qrcodes", auth(http.HandlerFunc(qrH.ListQRCodes)))
	mux.Handle("GET /v1/qrcodes/{id}", auth(http.HandlerFunc(qrH.GetQRCode)))

	mux.Handle("GET /v1/admin/users", auth(admin(http.HandlerFunc(adminH.ListUsers))))
	mux.Handle("PUT /v1/admin/users/{id}/coins", auth(admin(http.HandlerFunc(adminH.SetCoins))))

	return mux
}
