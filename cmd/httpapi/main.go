// Command httpapi is the HTTP transport adapter for internal/router: a
// thin gin binding that translates real HTTP requests into router.Request
// values and router.Response values back into HTTP responses, plus a
// gorilla/websocket stream for watch_health(). The dispatch contract lives
// entirely in internal/router; this command owns only the transport.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qorzen/kernel/internal/kernel"
)

func main() {
	port := flag.String("port", "8000", "HTTP listen port")
	flag.Parse()

	boot := kernel.DefaultBootConfig()
	orch, err := kernel.New(boot)
	if err != nil {
		log.Fatalf("init failed: %v", err)
	}
	if err := orch.Start(context.Background()); err != nil {
		log.Fatalf("init failed: %v", err)
	}

	engine := gin.Default()
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization", "X-Forwarded-For", "X-API-Key"},
	}))

	engine.GET("/ws/health", newHealthStream(orch))
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(orch.Metrics.Registry, promhttp.HandlerOpts{})))
	engine.NoRoute(newDispatchHandler(orch))

	srv := &http.Server{Addr: ":" + *port, Handler: engine}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("httpapi listening on :%s", *port)
		if err := srv.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		log.Println("shutting down gracefully")
	case err := <-errCh:
		log.Printf("server error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	if err := orch.Shutdown(time.Now().Add(orch.ShutdownTimeout())); err != nil {
		log.Printf("kernel shutdown error: %v", err)
		os.Exit(1)
	}
}
