package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botstore/chain"
	"botstore/config"
	"botstore/engine"
	"botstore/invite"
	"botstore/observability/logging"
	"botstore/server"
	"botstore/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "storefront.yaml", "path to the storefrontd config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("storefrontd", "").Error("load config", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup("storefrontd", cfg.Environment)

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer store.Close()

	eth, err := chain.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.Error("dial rpc node", "url", cfg.Chain.RPCURL, "err", err)
		os.Exit(1)
	}
	defer eth.Close()

	rpc := chain.NewRPCClient(eth, chain.WithLookupRetry(cfg.Chain.ReceiptAttempts, cfg.Chain.ReceiptDelay.Duration))
	explorer := chain.NewExplorerClient(cfg.Chain.ExplorerURL, cfg.Chain.ExplorerAPIKey)
	inviter := invite.NewGitHubInviter(cfg.GitHub.APIURL, cfg.GitHub.Token)

	eng, err := engine.New(store, explorer, rpc, inviter, engine.Config{
		Recipient:           cfg.Chain.RecipientAddress(),
		SweepConfirmations:  cfg.Sweep.MinConfirmations,
		VerifyConfirmations: cfg.Verify.MinConfirmations,
		MaxOrdersPerSweep:   cfg.Sweep.MaxOrders,
		PaymentWindow:       cfg.Sweep.PaymentWindow.Duration,
		BackwardSlack:       cfg.Sweep.BackwardSlack.Duration,
	}, logger)
	if err != nil {
		logger.Error("build engine", "err", err)
		os.Exit(1)
	}

	srv, err := server.New(eng, store, logger, server.Config{SweepSecret: cfg.Sweep.Secret})
	if err != nil {
		logger.Error("build server", "err", err)
		os.Exit(1)
	}

	httpSrv := &http.Server{Addr: cfg.ListenAddress, Handler: srv}
	go func() {
		logger.Info("storefrontd listening", "addr", cfg.ListenAddress)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down storefrontd")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
}
