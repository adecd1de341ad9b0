package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"event-escrow/config"
	"event-escrow/contracts"
	"event-escrow/handlers"
	"event-escrow/journal"
	"event-escrow/logger"
	"event-escrow/monitoring"
	"event-escrow/ticketing"
)

// custody is the backend escrowed funds move through.
type custody struct {
	address common.Address
	tokens  ticketing.TokenSource
	native  ticketing.NativeTransfer
	dev     *handlers.DevHandler
	close   func()
}

func connectToEthereum(ctx context.Context, cfg *config.Config, log *zap.Logger) (*custody, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if remote, err := client.ChainID(ctx); err == nil && remote.Cmp(chainID) != 0 {
		client.Close()
		return nil, fmt.Errorf("rpc chain id %s does not match CHAIN_ID %d", remote, cfg.ChainID)
	}

	signer, err := contracts.NewSigner(cfg.SignerKey, chainID)
	if err != nil {
		client.Close()
		return nil, err
	}
	auth, err := signer.TransactOpts()
	if err != nil {
		client.Close()
		return nil, err
	}

	log.Info("connected to Ethereum node",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("custody", signer.Address.Hex()))

	return &custody{
		address: signer.Address,
		tokens:  contracts.NewTokenSet(client, auth),
		native:  contracts.NewNativeSender(client, signer),
		close:   client.Close,
	}, nil
}

func memoryCustody(cfg *config.Config, units *handlers.Units, log *zap.Logger) *custody {
	bank := contracts.NewMemoryBank(cfg.CustodyAddress)
	native := contracts.NewMemoryNative(cfg.CustodyAddress)
	log.Warn("no RPC_URL configured, running on in-memory ledgers",
		zap.String("custody", cfg.CustodyAddress.Hex()))
	return &custody{
		address: cfg.CustodyAddress,
		tokens:  bank,
		native:  native,
		dev:     handlers.NewDevHandler(bank, native, units, log),
		close:   func() {},
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	units := handlers.NewUnits(cfg.NativeDecimals)
	var supported, feeTokens []common.Address
	for _, t := range cfg.Tokens {
		units.Set(t.Address, t.Decimals)
		if t.FeeBearing {
			feeTokens = append(feeTokens, t.Address)
		} else {
			supported = append(supported, t.Address)
		}
	}

	var backend *custody
	if cfg.MemoryMode() {
		backend = memoryCustody(cfg, units, log)
	} else {
		var err error
		if backend, err = connectToEthereum(ctx, cfg, log); err != nil {
			return err
		}
	}
	defer backend.close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewMetrics(registry)

	sinks := []ticketing.Sink{metrics}
	if cfg.DatabaseURL != "" {
		pool, err := journal.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		pg := journal.NewPostgres(pool, log)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, pg)
		log.Info("notification journal enabled")
	}
	if cfg.AMQPURL != "" {
		pub, err := journal.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		log.Info("notification publisher enabled", zap.String("exchange", cfg.AMQPExchange))
	}

	engine, err := ticketing.New(ticketing.Config{
		Owner:           cfg.Owner,
		Custody:         backend.address,
		SupportedTokens: supported,
		FeeTokens:       feeTokens,
		FeePool:         cfg.FeePool,
		Tokens:          backend.tokens,
		Native:          backend.native,
		Logger:          log.Named("ticketing"),
		Observer:        metrics,
		Sinks:           sinks,
	})
	if err != nil {
		return err
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.RouterConfig{
		Engine:         engine,
		Units:          units,
		Logger:         log.Named("http"),
		AllowedOrigins: cfg.AllowedOrigins,
		Gatherer:       registry,
		Dev:            backend.dev,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.Bool("memory_mode", cfg.MemoryMode()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
