package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/internal/player"
	"github.com/cb3tech/moshcast-live/internal/session"
	"github.com/cb3tech/moshcast-live/internal/transport"
	pkglog "github.com/cb3tech/moshcast-live/pkg/log"
)

func main() {
	relayURL := flag.String("relay", "ws://localhost:8090/ws", "relay websocket URL")
	hostID := flag.String("host", "", "host id to tune in to (required)")
	name := flag.String("name", "guest", "display name for chat")
	token := flag.String("token", "", "bearer token for the relay")
	flag.Parse()

	if *hostID == "" {
		fmt.Fprintln(os.Stderr, "-host is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		pkglog.L().Fatal().Err(err).Msg("failed to load config")
	}
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: true, ServiceName: "listen"})
	logger := pkglog.L()

	ctx := context.Background()

	ch := transport.New(*relayURL, transport.Options{
		ReconnectMin: cfg.Transport.ReconnectMin,
		ReconnectMax: cfg.Transport.ReconnectMax,
		DialTimeout:  cfg.Transport.DialTimeout,
		WriteWait:    cfg.WebSocket.WriteWait,
	})

	// Gesture-gated, like the browser: nothing plays until the user
	// presses Enter.
	pl := player.New(player.Options{
		TickInterval:   cfg.Sync.TickInterval,
		RequireGesture: true,
	}, player.Handlers{})
	defer pl.Close()

	listener := session.NewListener(ch, pl, session.ListenerConfig{
		DriftThreshold: cfg.Sync.DriftThreshold,
	})
	chat := session.NewChat(ch)

	listener.OnStateChange(func(s session.ListenerState) {
		switch s {
		case session.ListenerAwaitingGesture:
			fmt.Println("* press Enter to start listening")
		case session.ListenerSynced:
			if snap := listener.Snapshot(); snap != nil && snap.Track != nil {
				fmt.Printf("* synced: %s — %s\n", snap.Track.Artist, snap.Track.Title)
			}
		}
	})
	listener.OnEnded(func(message string) {
		fmt.Printf("* %s\n", message)
	})
	listener.OnListenersChanged(func(count int) {
		fmt.Printf("* %d listening\n", count)
	})
	listener.OnError(func(code, message string) {
		fmt.Printf("* %s: %s\n", code, message)
		if code == domain.ErrCodeNotLive || code == domain.ErrCodeSessionFull {
			os.Exit(1)
		}
	})
	chat.OnMessage(func(msg domain.ChatMessage, own bool) {
		printChat(msg, own)
	})

	// Rejoin automatically after a relay reconnect.
	ch.OnConnect(func() {
		if *token != "" {
			ch.Emit(domain.MsgTypeAuth, domain.AuthMessage{Type: domain.MsgTypeAuth, Token: *token})
		}
		if err := listener.Join(*hostID, *name); err != nil {
			logger.Warn().Err(err).Msg("join failed")
		}
	})

	if err := ch.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("could not reach the relay")
	}
	defer func() {
		listener.Leave()
		ch.Disconnect()
	}()

	fmt.Printf("tuning in to %s — Enter to unlock audio, type to chat, /quit to leave\n", *hostID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			if err := listener.StartListening(); err != nil {
				fmt.Printf("cannot start: %v\n", err)
			}
		case line == "/quit":
			return
		default:
			if err := chat.Send(line); err != nil {
				fmt.Printf("chat failed: %v\n", err)
			}
		}
	}
}

func printChat(msg domain.ChatMessage, own bool) {
	switch {
	case msg.System:
		fmt.Printf("* %s\n", msg.Text)
	case own:
		fmt.Printf("you: %s\n", msg.Text)
	default:
		fmt.Printf("%s: %s\n", msg.SenderLabel, msg.Text)
	}
}
