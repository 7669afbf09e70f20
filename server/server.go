package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/storage"
)

// Server handles re-segmentation requests against a result store.
type Server struct {
	config          *Config
	store           storage.Store
	cache           *volumeCache
	schemas         map[string]*jsonschema.Schema
	authorizedUsers map[string]string
	handler         http.Handler
}

// New returns a server using the given configuration and store.  The store is not
// closed by the server.
func New(config *Config, store storage.Store) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("no result store given: %w", dvid.ErrInvalidArgument)
	}
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	s := &Server{
		config:  config,
		store:   store,
		cache:   newVolumeCache(config.Cache.Size),
		schemas: schemas,
	}
	if config.Auth.Enabled() {
		if s.authorizedUsers, err = loadAuthFile(config.Auth.AuthFile); err != nil {
			return nil, err
		}
	}
	var c *cors.Cors
	if len(config.Server.AllowedOrigins) == 0 {
		c = cors.AllowAll()
	} else {
		c = cors.New(cors.Options{
			AllowedOrigins: config.Server.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
		})
	}
	s.handler = c.Handler(s.routes())
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Serve listens on the configured address until ctx is done, then stops accepting
// requests and gives running ones the configured shutdown delay to finish.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.HTTPAddress,
		Handler:           s,
		ReadHeaderTimeout: time.Minute,
	}
	dvid.AllowRequests()
	errc := make(chan error, 1)
	go func() {
		dvid.Infof("Web server listening at %s (%s) ...\n", s.config.Server.HTTPAddress, s.config.Host())
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	dvid.DenyRequests()
	delay := time.Duration(s.config.Server.ShutdownDelay) * time.Second
	dvid.Infof("Shutting down web server, waiting up to %s for requests...\n", delay)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), delay)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
