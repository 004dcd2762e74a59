// Package httpserver manages server creation and api routing.
package httpserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/ledgerdelivery"
	"github.com/go-petr/pet-ledger/internal/ledgerservice"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/tokenpkg"
)

// DriverMemory selects the in-memory account store in DB_DRIVER. It keeps no state
// across restarts and is meant for local runs and tests.
const DriverMemory = "memory"

// Server holds db connection, handlers router and configuration.
type Server struct {
	DB     *sql.DB
	Engine *gin.Engine
	Config configpkg.Config

	closers []func() error
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// Close releases the log store, cache and broker connections opened by New in reverse
// order. The database connection is owned by the caller.
func (s *Server) Close() error {
	var errs []error

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}

	s.closers = nil

	return errors.Join(errs...)
}

// New creates Server type with instantiated domains and routes.
//
// conn may be nil when DB_DRIVER is memory and LOG_STORE is not postgres.
func New(ctx context.Context, conn *sql.DB, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	server := &Server{
		DB:     conn,
		Config: config,
	}

	var accountRepo ledgerservice.AccountRepo
	if config.DBDriver == DriverMemory {
		accountRepo = accountrepo.NewRepoMem(config.LockTimeout)
	} else {
		if conn == nil {
			return nil, errors.New("database connection is required")
		}
		accountRepo = accountrepo.NewRepoPGS(conn, config.LockTimeout)
	}

	entryRepo, err := server.openLogStore(ctx, conn)
	if err != nil {
		_ = server.Close()
		return nil, fmt.Errorf("cannot open log store: %w", err)
	}

	balances, accountIDs := server.openCache(ctx, logger)

	var opts []ledgerservice.Option

	publisher, err := server.openPublisher()
	if err != nil {
		_ = server.Close()
		return nil, fmt.Errorf("cannot open events publisher: %w", err)
	}

	if publisher != nil {
		opts = append(opts, ledgerservice.WithPublisher(publisher))
	}

	tokenMaker, err := tokenpkg.NewMaker(config.TokenType, config.TokenSymmetricKey)
	if err != nil {
		_ = server.Close()
		return nil, fmt.Errorf("cannot create token maker: %w", err)
	}

	ledgerService := ledgerservice.New(accountRepo, entryRepo, balances, accountIDs, opts...)
	ledgerHandler := ledgerdelivery.NewHandler(ledgerService)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))
	engine.Use(gin.Recovery())

	engine.GET("/health", func(gctx *gin.Context) {
		gctx.Status(http.StatusOK)
	})

	authRoutes := engine.Group("/").Use(middleware.AuthMiddleware(tokenMaker))

	authRoutes.POST("/wallets", ledgerHandler.Create)
	authRoutes.POST("/wallets/deposit", ledgerHandler.Deposit)
	authRoutes.POST("/wallets/withdraw", ledgerHandler.Withdraw)
	authRoutes.GET("/wallets/balance", ledgerHandler.Balance)
	authRoutes.GET("/wallets/statement", ledgerHandler.Statement)

	authRoutes.POST("/transfers", ledgerHandler.Transfer)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		err := v.RegisterValidation("money", ledgerdelivery.ValidMoney)
		if err != nil {
			_ = server.Close()
			return nil, errors.New("cannot register money validator")
		}
	}

	server.Engine = engine

	return server, nil
}
