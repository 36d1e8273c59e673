package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fasset-backend/internal/app"
	"fasset-backend/internal/config"
	"fasset-backend/internal/db"
	"fasset-backend/internal/router"
)

func main() {
	log.Println("🚀 Starting FAsset backend...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db.InitDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := app.InitializeContainer(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to initialize service container: %v", err)
	}
	defer container.Cleanup()

	r := router.SetupRouter(&router.Handlers{
		Auth:        container.AuthHandler,
		AdminAuth:   container.AdminAuthHandler,
		Agent:       container.AgentHandler,
		Minting:     container.MintingHandler,
		Redemption:  container.RedemptionHandler,
		Challenge:   container.ChallengeHandler,
		Liquidation: container.LiquidationHandler,
		System:      container.SystemHandler,
		Admin:       container.AdminHandler,
		Price:       container.PriceHandler,
		Event:       container.EventHandler,
		WebSocket:   container.WebSocketHandler,
	})

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("✅ HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Shutdown signal received, draining connections...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP server shutdown error: %v", err)
	}

	log.Println("✅ Server stopped")
}
