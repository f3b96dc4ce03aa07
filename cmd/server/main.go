package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	approuters "messaging-service/internal/app_routers"
	"messaging-service/internal/configuration"
	"messaging-service/internal/observability"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	container, err := configuration.BuildContainer()
	if err != nil {
		log.Fatalf("Failed to build container: %v", err)
	}
	defer container.Close()

	shutdownTracing, err := observability.InitTracing(context.Background(), "messaging-service", container.Config.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	approuters.StartServer(container)
}
