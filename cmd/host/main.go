package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/internal/domain"
	"github.com/cb3tech/moshcast-live/internal/library"
	"github.com/cb3tech/moshcast-live/internal/player"
	"github.com/cb3tech/moshcast-live/internal/session"
	"github.com/cb3tech/moshcast-live/internal/transport"
	pkglog "github.com/cb3tech/moshcast-live/pkg/log"
)

func main() {
	relayURL := flag.String("relay", "ws://localhost:8090/ws", "relay websocket URL")
	hostID := flag.String("host-id", "", "host id to broadcast as (required)")
	token := flag.String("token", "", "bearer token for the relay")
	trackID := flag.String("track", "", "track id to fetch from the library")
	mediaURL := flag.String("media", "", "track media URL (when not using -track)")
	title := flag.String("title", "", "track title")
	artist := flag.String("artist", "", "track artist")
	duration := flag.Float64("duration", 0, "track duration in seconds")
	flag.Parse()

	if *hostID == "" {
		fmt.Fprintln(os.Stderr, "-host-id is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		pkglog.L().Fatal().Err(err).Msg("failed to load config")
	}
	pkglog.Init(pkglog.Config{Level: cfg.Log.Level, Pretty: true, ServiceName: "host"})
	logger := pkglog.L()

	ctx := context.Background()

	track, err := resolveTrack(ctx, cfg, *trackID, *mediaURL, *title, *artist, *duration)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not resolve track")
	}

	ch := transport.New(*relayURL, transport.Options{
		ReconnectMin: cfg.Transport.ReconnectMin,
		ReconnectMax: cfg.Transport.ReconnectMax,
		DialTimeout:  cfg.Transport.DialTimeout,
		WriteWait:    cfg.WebSocket.WriteWait,
	})

	// The controller is created after the player, so the player's
	// callbacks close over this variable.
	var host *session.Host

	pl := player.New(player.Options{
		TickInterval: cfg.Sync.TickInterval,
	}, player.Handlers{
		OnTick:  func(pos float64) { host.OnPositionTick(pos) },
		OnPlay:  func() { host.OnPlayStateChange(true) },
		OnPause: func() { host.OnPlayStateChange(false) },
		OnEnded: func() { host.OnTrackEnded() },
		OnError: func(err error) { fmt.Printf("playback error: %v\n", err) },
	})
	defer pl.Close()

	host = session.NewHost(ch, pl, *hostID, session.HostConfig{
		PublishThrottle: cfg.Sync.PublishThrottle,
		SnapshotEvery:   cfg.Sync.SnapshotEvery,
	})
	chat := session.NewChat(ch)

	host.OnListenersChanged(func(count int) {
		fmt.Printf("* %d listening\n", count)
	})
	chat.OnMessage(func(msg domain.ChatMessage, own bool) {
		printChat(msg, own)
	})

	if err := ch.Connect(ctx); err != nil {
		logger.Fatal().Err(err).Msg("could not reach the relay")
	}
	defer ch.Disconnect()

	if *token != "" {
		ch.Emit(domain.MsgTypeAuth, domain.AuthMessage{Type: domain.MsgTypeAuth, Token: *token})
	}

	if err := host.Start(track); err != nil {
		logger.Fatal().Err(err).Msg("could not start the session")
	}
	fmt.Printf("live as %s: %s — %s\n", *hostID, track.Artist, track.Title)
	fmt.Println("commands: play | pause | seek <seconds> | say <text> | end")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "play":
			if err := pl.Play(); err != nil {
				fmt.Printf("cannot play: %v\n", err)
			}
		case line == "pause":
			pl.Pause()
		case strings.HasPrefix(line, "seek "):
			seconds, err := strconv.ParseFloat(strings.TrimPrefix(line, "seek "), 64)
			if err != nil {
				fmt.Println("usage: seek <seconds>")
				continue
			}
			pl.Seek(seconds)
			host.OnPlayStateChange(pl.Playing())
		case strings.HasPrefix(line, "say "):
			if err := chat.Send(strings.TrimPrefix(line, "say ")); err != nil {
				fmt.Printf("chat failed: %v\n", err)
			}
		case line == "end" || line == "quit":
			host.End()
			fmt.Println("session ended")
			return
		case line == "":
		default:
			fmt.Println("commands: play | pause | seek <seconds> | say <text> | end")
		}
	}
}

func resolveTrack(ctx context.Context, cfg *config.Config, trackID, mediaURL, title, artist string, duration float64) (*domain.Track, error) {
	if trackID != "" {
		lib := library.NewClient(cfg.Library)
		return lib.GetTrack(ctx, trackID)
	}
	if mediaURL == "" {
		return nil, fmt.Errorf("either -track or -media is required")
	}
	return &domain.Track{
		ID:       mediaURL,
		Title:    title,
		Artist:   artist,
		MediaURL: mediaURL,
		Duration: duration,
	}, nil
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
