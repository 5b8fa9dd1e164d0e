package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"ichat-sync/internal/ipc"
	"ichat-sync/internal/restclient"
	"ichat-sync/internal/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	openURL := flag.String("open", "", "conversation URL to open on start")
	flag.Parse()

	apiURL := getEnv("ICHAT_API_URL", "http://localhost:8083")
	wsURL := getEnv("ICHAT_WS_URL", "ws://localhost:8083/ws")
	token := getEnv("ICHAT_TOKEN", "")
	userID := getEnv("ICHAT_USER_ID", "")
	if token == "" || userID == "" {
		log.Fatal("ICHAT_TOKEN and ICHAT_USER_ID are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := restclient.New(apiURL, token)
	manager := transport.NewManager(transport.Config{URL: wsURL})

	a := newApp(userID, api, manager)
	a.bind()

	socket := getEnv("ICHAT_SOCKET", ipc.DefaultSocketPath("client"))
	listener, err := ipc.Listen(socket, a.handleIPC(cancel))
	if err != nil {
		log.Fatalf("ipc listen: %v", err)
	}
	defer listener.Close()

	if err := manager.Connect(ctx, token); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer manager.Close()

	a.tracker.Init(ctx)
	defer a.tracker.Dispose(context.Background())

	if *openURL != "" {
		if ref, ok := parseTarget(*openURL); ok {
			a.open(ctx, ref)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Printf("received %v, shutting down", s)
	case <-ctx.Done():
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
