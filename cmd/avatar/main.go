// The avatar command is a headless voice client: it captures microphone
// audio, negotiates a realtime session through the broker, and animates a
// terminal avatar from the audio levels.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/config"
	"github.com/Bhuman-Patel/Talking-Avatar/internal/log"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/control"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/feedback"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/media"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/session"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/signal"
)

func main() {
	brokerURL := flag.String("broker", "", "Broker base URL (or set BROKER_URL env)")
	useToken := flag.Bool("token", false, "Fetch an ephemeral credential and negotiate directly upstream")
	backend := flag.String("backend", "", "Audio backend: cmd or mock (or set AUDIO_BACKEND env)")
	device := flag.String("device", "", "Audio device (or set AUDIO_DEVICE env)")
	mute := flag.Bool("no-playback", false, "Disable remote audio playback")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	config.Load()

	logLevel := config.LogLevel()
	if *debug {
		logLevel = "debug"
	}
	log.Init(logLevel)

	base := *brokerURL
	if base == "" {
		base = config.BrokerURL()
	}
	base = strings.TrimRight(base, "/")

	audioCfg := media.DefaultConfig()
	if b := firstNonEmpty(*backend, config.AudioBackend()); b != "" {
		audioCfg.Backend = media.Backend(b)
	}
	audioCfg.Device = firstNonEmpty(*device, config.AudioDevice())

	source, err := media.NewSource(audioCfg, log.L())
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ audio source: %v\n", err)
		os.Exit(1)
	}
	defer source.Close()

	var neg signal.Negotiator
	if *useToken {
		neg = &signal.TokenNegotiator{BrokerURL: base + "/session"}
	} else {
		neg = &signal.RelayNegotiator{URL: base + "/session"}
	}

	ch := control.NewChannel(control.DefaultSessionConfig().WithVoice(config.Voice()), control.Options{})

	opts := []signal.Option{}
	if !*mute {
		sink, err := media.NewSink(audioCfg, log.L())
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ audio sink: %v\n", err)
			os.Exit(1)
		}
		defer sink.Close()
		opts = append(opts, signal.WithSink(sink))
	}
	client := signal.NewClient(source, neg, ch, opts...)

	micBar := &feedback.Bar{Gain: feedback.DefaultMicGain, Draw: drawBar("🎤 mic   ")}
	remoteBar := &feedback.Bar{Gain: feedback.DefaultRemoteGain, Draw: drawBar("🔊 remote")}
	mouth := &feedback.Mouth{
		Gain:        feedback.DefaultMouthGain,
		MaxOpenness: feedback.DefaultMaxOpenness,
		Draw:        drawMouth,
	}

	ctl := session.NewController(client,
		session.WithMicSink(micBar),
		session.WithRemoteSink(remoteBar),
		session.WithMouthSink(mouth),
	)
	ctl.OnStateChange(func(s signal.State) {
		fmt.Printf("\n⚡ %s\n", s)
	})
	ctl.OnTranscript(func(text string, final bool) {
		if final {
			fmt.Printf("\n💬 %s\n", text)
		}
	})
	ctl.OnControlEvent(func(ev control.Event) {
		if ev.Type == control.EventError {
			fmt.Printf("\n❌ %s\n", ev.Detail)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n👋 Shutting down...")
		cancel()
	}()

	fmt.Println("🗣️  Talking Avatar client")
	fmt.Printf("   Broker:  %s\n", base)
	fmt.Printf("   Backend: %s\n", source.Name())
	fmt.Println("   Commands: [t] test prompt, [q] quit")

	if err := ctl.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ connect: %v\n", err)
		os.Exit(1)
	}

	go readCommands(ctl, cancel)

	<-ctx.Done()
	ctl.Disconnect()
	fmt.Println("👋 Goodbye!")
}

func readCommands(ctl *session.Controller, cancel context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "t":
			if err := ctl.SendTestPrompt(); err != nil {
				fmt.Printf("❌ test prompt: %v\n", err)
			}
		case "q":
			cancel()
			return
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// drawBar renders a level bar on one line, overwriting itself.
func drawBar(label string) func(pct float64) {
	return func(pct float64) {
		width := int(pct / 5)
		if width > 20 {
			width = 20
		}
		fmt.Printf("\r%s [%-20s] %3.0f%%", label, strings.Repeat("█", width), pct)
	}
}

// drawMouth renders mouth openness as a widening gap.
func drawMouth(openness float64) {
	gap := int(openness / 7)
	if gap > 6 {
		gap = 6
	}
	fmt.Printf("  👄 %s", strings.Repeat("○", gap))
}
