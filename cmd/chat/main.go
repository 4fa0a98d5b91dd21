// chat joins one room and streams its live feed to the console.
// Usage: go run ./cmd/chat --config configs/chat.local.yaml --room 42
//
// Required environment variables (a .env file is honored):
//
//	CHAT_TOKEN - Bearer token for the chat server
//
// Lines typed on stdin are sent to the room. Two commands are recognized:
//
//	/add <username> - add a member (room owner only)
//	/quit           - leave the room and exit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tearschat/chatclient/internal/api"
	"github.com/tearschat/chatclient/internal/config"
	"github.com/tearschat/chatclient/internal/connection"
	"github.com/tearschat/chatclient/internal/eventbus"
	"github.com/tearschat/chatclient/internal/model"
	"github.com/tearschat/chatclient/internal/session"
	"github.com/tearschat/chatclient/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/chat.example.yaml", "path to config file")
	roomID := flag.Int64("room", 0, "room id to join")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	if *roomID <= 0 {
		logger.Error("missing required --room flag")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("chat client starting", "version", version.String(), "room_id", *roomID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	apiClient := api.NewClient(cfg.API.RestURL, cfg.API.Token,
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, time.Second),
		api.WithLogger(logger),
	)

	bus := eventbus.New()

	connCfg := connection.DefaultManagerConfig()
	connCfg.WSBaseURL = cfg.API.WSURL
	connCfg.Policy = model.ReconnectPolicy{
		MaxAttempts: cfg.Reconnect.MaxAttempts,
		Delay:       cfg.Reconnect.Delay,
	}
	connCfg.HandshakeTimeout = cfg.Stream.HandshakeTimeout
	connCfg.WriteTimeout = cfg.Stream.WriteTimeout
	connCfg.PingInterval = cfg.Stream.PingInterval
	connCfg.PingTimeout = cfg.Stream.PingTimeout
	connCfg.BufferSize = cfg.Stream.BufferSize
	connMgr := connection.NewManager(connCfg, bus, logger)

	// Console printers observe the bus directly; the session keeps the feed.
	unsubPrint := bus.OnMessage(printFrame)
	defer unsubPrint()
	unsubState := bus.OnConnectionChange(printStateChange)
	defer unsubState()

	sess := session.New(apiClient, connMgr, bus, cfg.API.Token,
		session.Config{HistoryPerPage: cfg.History.PerPage}, logger)
	defer sess.Close()

	if err := sess.Load(ctx, *roomID); err != nil {
		logger.Error("failed to open room", "room_id", *roomID, "error", err)
		os.Exit(1)
	}

	room := sess.Room()
	fmt.Printf("--- %s (room %d, %d members, you are %s) ---\n",
		room.Name, room.ID, room.MemberCount, roleLabel(room.Role))
	for _, msg := range sess.Messages() {
		printMessage(msg)
	}

	go readInput(ctx, cancel, sess, logger)

	<-ctx.Done()
	fmt.Println("--- leaving room ---")
}

// readInput sends stdin lines to the room until the context ends.
func readInput(ctx context.Context, cancel context.CancelFunc, sess *session.Session, logger *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue

		case line == "/quit":
			cancel()
			return

		case strings.HasPrefix(line, "/add "):
			username := strings.TrimSpace(strings.TrimPrefix(line, "/add "))
			if err := sess.AddMember(ctx, username); err != nil {
				fmt.Printf("! add member failed: %v\n", err)
				continue
			}
			fmt.Printf("* added %s to the room\n", username)

		default:
			if err := sess.Send(line); err != nil {
				fmt.Printf("! send failed: %v\n", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("stdin closed", "error", err)
	}
	cancel()
}

func printFrame(f model.Frame) {
	switch f.Type {
	case model.FrameMessage:
		printMessage(f.Message())
	case model.FrameUserJoined:
		fmt.Printf("* %s joined\n", f.Username)
	case model.FrameUserLeft:
		fmt.Printf("* %s left\n", f.Username)
	}
}

func printMessage(msg model.Message) {
	stamp := ""
	if !msg.CreatedAt.IsZero() {
		stamp = msg.CreatedAt.Local().Format("15:04:05") + " "
	}
	fmt.Printf("%s%s: %s\n", stamp, msg.AuthorName, msg.Content)
}

func printStateChange(c eventbus.StateChange) {
	switch c.State {
	case model.StateConnecting:
		fmt.Println("* connecting...")
	case model.StateConnected:
		fmt.Println("* connected")
	case model.StateDisconnected:
		fmt.Println("* disconnected")
	case model.StateError:
		fmt.Printf("* connection error: %v\n", c.Err)
	}
}

func roleLabel(r model.Role) string {
	if r == model.RoleNone {
		return "a guest"
	}
	return string(r)
}
