package cmd

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"booking-validation-service/cmd/validator/config"
	"booking-validation-service/internal/store"
	"booking-validation-service/internal/store/gormstore"
	"booking-validation-service/internal/store/memory"
	"booking-validation-service/pkg/errors"
	"booking-validation-service/pkg/logger"
	"booking-validation-service/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

const metricsNamespace = "booking_validation"

// application holds the stores and metrics shared by the subcommands
type application struct {
	storeKind string
	bookings  store.BookingStore
	reports   store.ReportStore
	db        *gormstore.Store

	registry *prometheus.Registry
	metrics  *metrics.Metrics
	server   *http.Server

	logger logger.Logger
}

// openApplication connects the configured store and starts the metrics
// listener when --metrics-addr is set
func openApplication() (*application, error) {
	app := &application{
		storeKind: viper.GetString("store"),
		registry:  prometheus.NewRegistry(),
		logger:    logger.GetGlobalLogger().WithComponent("cli"),
	}
	app.metrics = metrics.NewMetrics(metricsNamespace, app.registry)

	if !config.ValidStoreKind(app.storeKind) {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "store", app.storeKind, nil).
			WithSuggestion("use one of: memory, postgres, sqlite")
	}

	if err := app.openStore(); err != nil {
		return nil, err
	}
	if err := app.serveMetrics(viper.GetString("metrics-addr")); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *application) openStore() error {
	if a.storeKind == config.StoreMemory {
		bookings, err := memory.NewBookingStore()
		if err != nil {
			return errors.StoreError(errors.CodeStoreUnavailable, "open_memory_store", err)
		}
		if path := viper.GetString("bookings"); path != "" {
			seed, err := memory.LoadBookingsFile(path)
			if err != nil {
				return errors.FileError(errors.CodeFileCorrupted, path, err).
					WithSuggestion("provide a JSON array of bookings with id, bookingRef, flightNumber, departureDate and passengers")
			}
			if err := bookings.Seed(seed...); err != nil {
				return errors.ValidationError(errors.CodeInvalidData, "bookings", path, err)
			}
		}
		a.bookings = bookings
		a.reports = memory.NewReportStore()

		a.logger.WithField("bookings", bookings.Len()).Debug("Using in-memory store")
		return nil
	}

	dbConfig, err := config.CreateStoreConfig(a.storeKind, viper.GetString("dsn"), viper.GetBool("verbose"))
	if err != nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "dsn", viper.GetString("dsn"), err)
	}
	db, err := gormstore.Open(dbConfig)
	if err != nil {
		return errors.StoreError(errors.CodeStoreUnavailable, "open_database", err).
			WithContext("driver", dbConfig.Driver).
			WithSuggestion("check --dsn and that the database is reachable")
	}
	a.db = db
	a.bookings = db
	a.reports = db

	a.logger.WithField("driver", dbConfig.Driver).Debug("Using database store")
	return nil
}

func (a *application) serveMetrics(addr string) error {
	if addr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "metrics-addr", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	a.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := a.server.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			a.logger.WithError(err).Warn("Metrics server stopped")
		}
	}()
	a.logger.WithField("addr", listener.Addr().String()).Info("Serving metrics")
	return nil
}

// requireDatabase fails for commands that only make sense on a persistent store
func (a *application) requireDatabase(command string) error {
	if config.IsPersistent(a.storeKind) && a.db != nil {
		return nil
	}
	return errors.ConfigurationError(errors.CodeInvalidConfig, "store", a.storeKind, nil).
		WithContext("command", command).
		WithSuggestion("the memory store does not outlive one command; use --store sqlite or --store postgres")
}

// Close stops the metrics listener and closes the database
func (a *application) Close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.WithError(err).Warn("Closing the database failed")
		}
	}
}
