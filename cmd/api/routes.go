package main

import (
	"net/http"

	"github.com/zoevanderzee/interlincRender-sub005/internal/auth"
	"github.com/zoevanderzee/interlincRender-sub005/internal/handlers"
	"github.com/zoevanderzee/interlincRender-sub005/internal/middleware"
)

// registerRoutes wires the API surface. Middleware chain for the protected
// routes: ActorAuth -> handler; authorization is enforced inside each
// operation by the guard, never here.
func registerRoutes(
	mux *http.ServeMux,
	authSvc auth.Service,
	authHandler *auth.Handler,
	workItems *handlers.WorkItemHandler,
	payments *handlers.PaymentHandler,
	contracts *handlers.ContractHandler,
	webhooks *handlers.WebhookHandler,
) {
	// Public
	mux.HandleFunc("POST /auth/register", authHandler.Register)
	mux.HandleFunc("POST /auth/login", authHandler.Login)

	// Processor callbacks authenticate with an HMAC signature, not a token.
	mux.HandleFunc("POST /webhooks/processor", webhooks.Receive)

	withActor := middleware.ActorAuth(authSvc)
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, withActor(h))
	}

	// Work item lifecycle
	protected("POST /work-items", workItems.Create)
	protected("GET /work-items", workItems.List)
	protected("GET /work-items/{id}", workItems.Get)
	protected("POST /work-items/{id}/publish", workItems.Publish)
	protected("POST /work-items/{id}/assign", workItems.Assign)
	protected("POST /work-items/{id}/accept", workItems.Accept)
	protected("POST /work-items/{id}/decline", workItems.Decline)
	protected("POST /work-items/{id}/submissions", workItems.Submit)
	protected("POST /work-items/{id}/approve", workItems.Approve)
	protected("POST /work-items/{id}/reject", workItems.Reject)
	protected("POST /work-items/{id}/cancel", workItems.Cancel)
	protected("GET /work-items/{id}/submissions", workItems.ListSubmissions)
	protected("GET /work-items/{id}/transitions", workItems.ListTransitions)
	protected("POST /work-items/{id}/artifacts", workItems.UploadArtifact)
	protected("GET /work-items/{id}/artifacts", workItems.DownloadArtifact)

	// Payments and ledger
	protected("POST /payments", payments.CreateDirect)
	protected("GET /payments", payments.List)
	protected("GET /payments/totals", payments.Totals)

	// Contracts and budget
	protected("POST /contracts", contracts.Create)
	protected("GET /contracts", contracts.List)
	protected("POST /contracts/{id}/status", contracts.UpdateStatus)
	protected("PATCH /businesses/me/budget", contracts.UpdateBudget)
}
