package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"glint/chat"
	"glint/config"
	"glint/provider"
	"glint/storage"
	"glint/tools"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("GLINT_DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("glint exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.EnsureDataDir(cfg.DataDirectory); err != nil {
		return err
	}

	store, err := storage.NewSQLiteStore(cfg.DataDirectory)
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := provider.New(provider.Config{
		Type:    provider.Type(cfg.Provider.Type),
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
		APIKey:  cfg.APIKey(),
	})
	if err != nil {
		return err
	}

	if avail := p.Availability(context.Background()); !avail.Available {
		log.Warn().
			Str("provider", p.Name()).
			Str("reason", string(avail.Reason)).
			Str("detail", avail.Detail).
			Msg("provider is not available; sends will fail until it is")
	}

	handles, cleanup := connectMCPServers(cfg.MCPServers)
	defer cleanup()

	manager, err := chat.NewManager(chat.Config{
		Provider: p,
		Store:    storage.NewConversationStore(store, log.Logger),
		Tools:    handles,
		Logger:   log.Logger,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	if manager.ActiveID() == uuid.Nil {
		manager.NewDraft()
	}

	return repl(manager)
}

// connectMCPServers launches the configured MCP servers and collects their
// tool handles. A server that fails to start is logged and skipped.
func connectMCPServers(servers []config.MCPServerConfig) ([]tools.Handle, func()) {
	ctx := context.Background()
	var handles []tools.Handle
	var connected []*tools.MCPServer

	for _, sc := range servers {
		srv, err := tools.ConnectMCP(ctx, sc.Command, sc.Env, sc.Args...)
		if err != nil {
			log.Warn().Err(err).Str("server", sc.Name).Msg("skipping MCP server")
			continue
		}
		hs, err := srv.Handles(ctx)
		if err != nil {
			log.Warn().Err(err).Str("server", sc.Name).Msg("listing MCP tools failed")
			srv.Close()
			continue
		}
		log.Info().Str("server", sc.Name).Int("tools", len(hs)).Msg("MCP server connected")
		connected = append(connected, srv)
		handles = append(handles, hs...)
	}

	return handles, func() {
		for _, srv := range connected {
			srv.Close()
		}
	}
}

func repl(manager *chat.Manager) error {
	fmt.Println("glint: type a message, or /help for commands")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := command(manager, line); quit {
				return nil
			}
			continue
		}

		manager.SetInput(line)
		if err := manager.SendMessage(); err != nil {
			fmt.Println("error:", err)
			continue
		}
		if err := manager.WaitIdle(context.Background()); err != nil {
			return err
		}
		printLastReply(manager)
	}
}

func command(manager *chat.Manager, line string) bool {
	fields := strings.Fields(line)
	arg := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch fields[0] {
	case "/quit", "/q":
		return true
	case "/new":
		manager.NewDraft()
		fmt.Println("started a new conversation")
	case "/list":
		for i, c := range manager.Conversations() {
			marker := " "
			if c.ID == manager.ActiveID() {
				marker = "*"
			}
			fmt.Printf("%s %2d. %s (%d messages)\n", marker, i+1, c.Title, len(c.Messages))
		}
	case "/open":
		withConversationIndex(manager, arg, func(id uuid.UUID) {
			manager.SelectConversation(id)
			fmt.Println("opened:", manager.Active().Title)
		})
	case "/delete":
		withConversationIndex(manager, arg, func(id uuid.UUID) {
			manager.DeleteConversation(id)
		})
	case "/retry":
		conv := manager.Active()
		if conv == nil || len(conv.Messages) == 0 {
			fmt.Println("nothing to retry")
			return false
		}
		last := conv.Messages[len(conv.Messages)-1]
		if err := manager.RetryMessage(last.ID); err != nil {
			fmt.Println("error:", err)
			return false
		}
		if err := manager.WaitIdle(context.Background()); err == nil {
			printLastReply(manager)
		}
	case "/search":
		for _, match := range manager.SearchMessages(arg) {
			fmt.Printf("[%s] %s\n", match.Title, match.Preview)
		}
	case "/export":
		conv := manager.Active()
		if conv == nil {
			fmt.Println("no active conversation")
			return false
		}
		path := arg
		if path == "" {
			path = storage.ExportPath(conv.Title)
		}
		if err := manager.ExportConversation(conv.ID, path); err != nil {
			fmt.Println("error:", err)
			return false
		}
		fmt.Println("exported to", path)
	case "/import":
		if arg == "" {
			fmt.Println("usage: /import <path>")
			return false
		}
		id, err := manager.ImportConversation(arg)
		if err != nil {
			fmt.Println("error:", err)
			return false
		}
		manager.SelectConversation(id)
		fmt.Println("imported:", manager.Active().Title)
	case "/settings":
		conv := manager.Active()
		if conv == nil {
			fmt.Println("no active conversation")
			return false
		}
		fmt.Printf("instructions: %s\ntemperature: %.2f\ntools: %v\n",
			conv.Instructions, conv.Temperature, conv.ToolsEnabled)
	case "/help":
		fmt.Println("/new /list /open <n> /delete <n> /retry /search <q> /export [path] /import <path> /settings /quit")
	default:
		fmt.Println("unknown command; /help lists commands")
	}
	return false
}

func withConversationIndex(manager *chat.Manager, arg string, fn func(uuid.UUID)) {
	n, err := strconv.Atoi(arg)
	convs := manager.Conversations()
	if err != nil || n < 1 || n > len(convs) {
		fmt.Println("usage: expected a conversation number from /list")
		return
	}
	fn(convs[n-1].ID)
}

func printLastReply(manager *chat.Manager) {
	conv := manager.Active()
	if conv == nil {
		return
	}
	idx := conv.LastAssistantIndex()
	if idx == -1 {
		return
	}
	msg := conv.Messages[idx]
	for _, call := range msg.ToolCalls {
		fmt.Printf("[tool %s: %s]\n", call.Name, call.Status)
	}
	if msg.Error != nil {
		fmt.Printf("error (%s): %s\n", msg.Error.Kind, msg.Error.Detail)
		if msg.Error.Kind.Recoverable() {
			fmt.Println("use /retry to try again")
		}
		return
	}
	fmt.Println(msg.Content)
}
