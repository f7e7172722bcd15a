package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/Hemraj183/LLMChatbot/internal/chatbot"
	"github.com/Hemraj183/LLMChatbot/internal/config"
	"github.com/Hemraj183/LLMChatbot/internal/ollama"
	"github.com/Hemraj183/LLMChatbot/internal/server"
	"github.com/Hemraj183/LLMChatbot/internal/session"
	"github.com/Hemraj183/LLMChatbot/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.InitLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cleanup, err := telemetry.InitTelemetry(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	client := ollama.NewClient(cfg.Ollama.Host, cfg.Ollama.APIKey, logger)
	store := session.NewStore(logger)
	bot := chatbot.New(*cfg, client, store, logger)
	srv := server.New(*cfg, bot, logger)

	printBanner(cfg)

	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server stopped", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printBanner(cfg *config.Config) {
	fmt.Println("==================================================================")
	fmt.Println("  Starting Chatbot Server...")
	fmt.Printf("  Access Locally: http://localhost:%s\n", cfg.Server.Port)
	fmt.Printf("  Access on Network: http://%s:%s\n", localIP(), cfg.Server.Port)
	fmt.Println("  Ensure Ollama is running: 'ollama serve'")
	fmt.Printf("  Ensure Model is pulled: 'ollama pull %s'\n", cfg.Ollama.DefaultModel)
	fmt.Println("==================================================================")
}

// localIP finds the address of the interface that carries outbound
// traffic. The dial never sends a packet; UDP connect just resolves
// the route.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
