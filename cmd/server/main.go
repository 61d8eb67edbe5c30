package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/config"
	"github.com/Bhuman-Patel/Talking-Avatar/internal/log"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/broker"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/web"
)

func main() {
	port := flag.String("port", "", "Listen port (or set PORT env)")
	model := flag.String("model", "", "Pin a realtime model (or set REALTIME_MODEL env)")
	voice := flag.String("voice", "", "Session voice (or set VOICE env)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	config.Load()

	logLevel := config.LogLevel()
	if *debug {
		logLevel = "debug"
	}
	log.Init(logLevel)

	apiKey, err := config.OpenAIKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "❌ OPENAI_API_KEY is not set")
		os.Exit(1)
	}

	listenPort := *port
	if listenPort == "" {
		listenPort = config.Port()
	}
	pinned := *model
	if pinned == "" {
		pinned = config.RealtimeModel()
	}
	sessionVoice := *voice
	if sessionVoice == "" {
		sessionVoice = config.Voice()
	}

	opts := []broker.Option{broker.WithVoice(sessionVoice)}
	if pinned != "" {
		opts = append(opts, broker.WithPinnedModel(pinned))
	}
	b := broker.New(apiKey, opts...)

	srv := web.NewServer(listenPort, b)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			log.Error("shutdown", "error", err)
		}
	}()

	fmt.Println("🗣️  Talking Avatar broker")
	fmt.Printf("   Port:  %s\n", listenPort)
	if pinned != "" {
		fmt.Printf("   Model: %s (pinned)\n", pinned)
	}
	fmt.Printf("   Voice: %s\n", sessionVoice)

	if err := srv.Start(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
