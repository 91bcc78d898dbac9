// Package api exposes the HTTP surface of the bot: the Facebook Messenger
// webhook that receives user messages and postbacks, and a small admin API
// for conversation takeover.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Osangy/api-sub000/internal/models"
	"github.com/Osangy/api-sub000/internal/store"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// eventTimeout bounds the processing of a single webhook event.
	eventTimeout = 30 * time.Second
)

// Dispatcher routes one inbound user message.
type Dispatcher interface {
	HandleTurn(ctx context.Context, turn models.DialogueTurn) error
}

// FlowStarter opens a flow for a user, replacing any active one.
type FlowStarter interface {
	Start(ctx context.Context, shopID, userID string, kind models.FlowKind, subjectID string) error
}

// ProfileFetcher resolves a Messenger user's name attributes.
type ProfileFetcher interface {
	GetUserProfile(ctx context.Context, userID string) (firstName, lastName string, err error)
}

// TextSender sends a plain text message to a user.
type TextSender interface {
	SendText(ctx context.Context, to, text string) error
}

// OwnerNotifier alerts the shop owner out of band.
type OwnerNotifier interface {
	NotifyOwner(ctx context.Context, ownerPhone, text string) error
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	VerifyToken string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// Server wires the webhook and admin endpoints to their collaborators.
type Server struct {
	addr        string
	verifyToken string

	st         store.Store
	dispatcher Dispatcher
	flows      FlowStarter
	profiles   ProfileFetcher
	sender     TextSender
	notifier   OwnerNotifier

	router     chi.Router
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates the API server. The verify token must be set or the
// webhook subscription handshake can never succeed.
func NewServer(st store.Store, dispatcher Dispatcher, flows FlowStarter, profiles ProfileFetcher, sender TextSender, notifier OwnerNotifier, opts ...Option) (*Server, error) {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.VerifyToken == "" {
		return nil, fmt.Errorf("webhook verify token must be provided")
	}
	s := &Server{
		addr:        cfg.Addr,
		verifyToken: cfg.VerifyToken,
		st:          st,
		dispatcher:  dispatcher,
		flows:       flows,
		profiles:    profiles,
		sender:      sender,
		notifier:    notifier,
	}
	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.healthHandler)
	r.Get("/webhook", s.verifyWebhookHandler)
	r.Post("/webhook", s.webhookHandler)

	r.Route("/admin", func(r chi.Router) {
		r.Get("/conversations", s.listConversationsHandler)
		r.Post("/conversations/{conversationID}/takeover", s.takeoverHandler)
		r.Post("/conversations/{conversationID}/release", s.releaseHandler)
	})

	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening and blocks until the server stops.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	slog.Info("API server listening", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight webhook
// events to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "ok"}))
}
