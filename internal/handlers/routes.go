package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies aggregates collaborators required by the device gateway handlers.
type Dependencies struct {
	Flows         AuthFlows
	Device        DeviceStore
	Callers       CallerVerifier
	Uploads       UploadRunner
	MaxUploadBody int64
	AuthLimiter   RateLimiter
	Checks        map[string]HealthCheck
}

// RegisterRoutes wires the auth and upload handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Checks: deps.Checks}
	auth := AuthHandler{Flows: deps.Flows, Device: deps.Device, Limiter: deps.AuthLimiter}
	uploads := UploadHandler{Callers: deps.Callers, Uploads: deps.Uploads, MaxBody: deps.MaxUploadBody}

	mux.HandleFunc("/healthz", health.Handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/auth/signin", auth.SignIn)
	mux.HandleFunc("/api/v1/auth/signup", auth.SignUp)
	mux.HandleFunc("/api/v1/auth/verify", auth.Verify)
	mux.HandleFunc("/api/v1/auth/resend", auth.Resend)
	mux.HandleFunc("/api/v1/auth/abandon", auth.Abandon)
	mux.HandleFunc("/api/v1/uploads", uploads.Create)
}

// ProcessorDependencies aggregates collaborators required by the processing function.
type ProcessorDependencies struct {
	Processor ReelProcessor
	Reels     ReelLister
	MaxBody   int64
	Checks    map[string]HealthCheck
}

// RegisterProcessorRoutes wires the processing function into the provided ServeMux.
func RegisterProcessorRoutes(mux *http.ServeMux, deps ProcessorDependencies) {
	health := HealthHandler{Checks: deps.Checks}
	reels := ReelHandler{Processor: deps.Processor, Reels: deps.Reels, MaxBody: deps.MaxBody}

	mux.HandleFunc("/healthz", health.Handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/reels/process", reels.Process)
	mux.HandleFunc("/api/v1/reels", reels.List)
}
