// Package server orchestrates all components: COMMS events, database, deployments,
// the protocol server and the HTTP admin and health endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/beanserver/internal/beans"
	"github.com/morezero/beanserver/internal/config"
	"github.com/morezero/beanserver/pkg/admin"
	"github.com/morezero/beanserver/pkg/commsutil"
	"github.com/morezero/beanserver/pkg/container"
	"github.com/morezero/beanserver/pkg/db"
	"github.com/morezero/beanserver/pkg/deployment"
	"github.com/morezero/beanserver/pkg/dispatcher"
	"github.com/morezero/beanserver/pkg/events"
	"github.com/morezero/beanserver/pkg/naming"
)

const logPrefix = "server:server"

// NamingRoot is the context under which every deployment is bound as a link.
const NamingRoot = "ejb"

// Server is the beanserver orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	reg        *deployment.Registry
	names      *naming.Context
	deployer   *Deployer
	proto      *dispatcher.Server
	protoLn    net.Listener
	httpServer *http.Server
	httpLn     net.Listener
	startedAt  time.Time
}

// Run loads config, starts the server, blocks until a shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	setupLogging(cfg.LogLevel)

	slog.Info(fmt.Sprintf("%s - Starting beanserver", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	factories := container.NewBeanFactories()
	if err := beans.Register(factories); err != nil {
		return fmt.Errorf("%s - failed to register beans: %w", logPrefix, err)
	}

	s, err := Start(ctx, cfg, factories)
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Beanserver is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.WriteTimeout)
	defer shutdownCancel()
	s.Close(shutdownCtx)

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

// Start brings every component up and returns once both listeners accept
// connections. On failure, whatever was started is closed again.
func Start(ctx context.Context, cfg *config.Config, factories *container.BeanFactories) (*Server, error) {
	s := &Server{cfg: cfg, names: naming.New(), startedAt: time.Now().UTC()}
	if err := s.start(ctx, factories); err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Server) start(ctx context.Context, factories *container.BeanFactories) error {
	cfg := s.cfg

	// Step 1: COMMS publisher for deployment events (optional)
	var publisher events.EventPublisher = events.NoOpPublisher{}
	if cfg.COMMSURL != "" {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		s.nc = nc
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: cfg.DeploymentEventSubject})
		slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, cfg.COMMSURL))
	}

	// Step 2: Database for key generators (optional)
	var database Database
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool
		database = pool

		if cfg.RunMigrations {
			migrations, err := db.LoadMigrationFiles(cfg.MigrationPath)
			if err != nil {
				return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
			}
			if err := db.RunMigrations(ctx, pool, migrations); err != nil {
				return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
			}
		}
	}

	// Step 3: Registry and deployments
	s.reg = deployment.NewRegistry(deployment.NewRegistryParams{Publisher: publisher})
	s.deployer = NewDeployer(NewDeployerParams{
		Registry:  s.reg,
		Factories: factories,
		DB:        database,
		BoltPath:  cfg.KeygenBoltPath,
	})
	if cfg.ManifestFile != "" {
		manifest, err := deployment.LoadManifest(cfg.ManifestFile)
		if err != nil {
			return err
		}
		if err := s.deployer.Deploy(ctx, manifest); err != nil {
			return err
		}
	}
	if err := s.bindDeployments(); err != nil {
		return err
	}

	// Step 4: Protocol server
	auth, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}
	s.proto = dispatcher.NewServer(dispatcher.ServerParams{
		Registry:      s.reg,
		Resolver:      s.names,
		Authenticator: auth,
		Workers:       cfg.Workers,
		ReadTimeout:   cfg.ReadTimeout,
		WriteTimeout:  cfg.WriteTimeout,
	})
	s.protoLn, err = net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, cfg.ListenAddr, err)
	}
	go func(ln net.Listener) {
		slog.Info(fmt.Sprintf("%s - Protocol server listening on %s", logPrefix, ln.Addr()))
		if err := s.proto.Serve(ln); err != nil && !errors.Is(err, dispatcher.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - protocol server error: %v", logPrefix, err))
		}
	}(s.protoLn)

	// Step 5: HTTP admin and health server
	mux, err := s.routes()
	if err != nil {
		return err
	}
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpLn, err = net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("%s - failed to listen on %s: %w", logPrefix, httpAddr, err)
	}
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: cfg.ReadTimeout}
	go func(ln net.Listener) {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, ln.Addr()))
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}(s.httpLn)

	return nil
}

func newAuthenticator(cfg *config.Config) (dispatcher.Authenticator, error) {
	if cfg.AuthMode != config.AuthModeStatic {
		return dispatcher.AllowAll{}, nil
	}
	users, err := dispatcher.ParseUsers(cfg.AuthUsers)
	if err != nil {
		return nil, fmt.Errorf("%s - BEAN_AUTH_USERS: %w", logPrefix, err)
	}
	return dispatcher.NewStaticAuthenticator(users)
}

// bindDeployments links NamingRoot/<name> to every registered deployment.
func (s *Server) bindDeployments() error {
	if err := s.names.CreateSubcontext(NamingRoot); err != nil {
		return fmt.Errorf("%s - naming: %w", logPrefix, err)
	}
	for _, e := range s.reg.List() {
		if err := s.names.Bind(NamingRoot+"/"+e.Name, naming.Link{Target: e.Name}); err != nil {
			return fmt.Errorf("%s - naming: bind %s: %w", logPrefix, e.Name, err)
		}
	}
	return nil
}

func (s *Server) routes() (*http.ServeMux, error) {
	rpcHandler, err := admin.NewHandler(s.reg)
	if err != nil {
		return nil, fmt.Errorf("%s - admin handler: %w", logPrefix, err)
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHome())
	mux.Handle("/rpc", rpcHandler)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()
		h := s.Health(ctx)
		w.Header().Set("Content-Type", "application/json")
		if h.Status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(h)
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	})
	return mux, nil
}

// Registry returns the deployment registry.
func (s *Server) Registry() *deployment.Registry { return s.reg }

// Deployer returns the deployer owning the running containers.
func (s *Server) Deployer() *Deployer { return s.deployer }

// ProtocolAddr returns the bound protocol listener address.
func (s *Server) ProtocolAddr() string { return s.protoLn.Addr().String() }

// HTTPAddr returns the bound HTTP listener address.
func (s *Server) HTTPAddr() string { return s.httpLn.Addr().String() }

// Close stops accepting, waits for in-flight requests, undeploys and releases connections.
func (s *Server) Close(ctx context.Context) {
	if s.proto != nil {
		if err := s.proto.Shutdown(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - protocol shutdown: %v", logPrefix, err))
		}
	}
	if s.protoLn != nil {
		s.protoLn.Close()
	}
	if s.httpServer != nil {
		s.httpServer.Shutdown(ctx)
	} else if s.httpLn != nil {
		s.httpLn.Close()
	}
	if s.deployer != nil {
		if err := s.deployer.Close(ctx); err != nil {
			slog.Warn(fmt.Sprintf("%s - deployer close: %v", logPrefix, err))
		}
	}
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}
