package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/harryneopotter/aicli/internal/agent"
	"github.com/harryneopotter/aicli/internal/config"
	"github.com/harryneopotter/aicli/internal/events"
	"github.com/harryneopotter/aicli/internal/model"
	"github.com/harryneopotter/aicli/internal/pool"
	"github.com/harryneopotter/aicli/internal/toolcatalog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "aicli: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sink := events.NewLogSink(logger)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	provider, err := model.NewOpenAICompatible(cfg.Model)
	if err != nil {
		return err
	}

	ctx := context.Background()

	mgr := pool.New(sink)
	defer mgr.Stop()
	for _, def := range sortedServers(cfg) {
		if err := mgr.Add(ctx, def); err != nil {
			return err
		}
	}
	mgr.Start()

	cat := toolcatalog.New(mgr, sink)
	store := agent.NewMemoryStore()
	loop := agent.NewLoop(provider, cat,
		agent.WithStore(store),
		agent.WithSink(sink),
		agent.WithMaxSteps(cfg.Chat.MaxToolSteps),
	)

	if !provider.IsAvailable(ctx) {
		logger.Warn("model provider is not reachable", "base_url", cfg.Model.BaseURL)
	}

	fmt.Println("aicli ready. Type 'exit' to quit, 'clear' to reset history, '/servers' or '/tools' for status.")

	var history []model.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch input {
		case "exit":
			return nil
		case "clear":
			history = nil
			fmt.Println("history cleared")
			continue
		case "/servers":
			printServers(mgr)
			continue
		case "/tools":
			printTools(ctx, cat)
			continue
		}

		// Tool listings are ephemeral, so the system prompt is rebuilt
		// from a fresh listing every turn.
		msgs := []model.Message{{Role: model.RoleSystem, Content: agent.SystemPrompt(cat.ListAll(ctx))}}
		msgs = append(msgs, history...)
		msgs = append(msgs, model.Message{Role: model.RoleUser, Content: input})

		answer, err := loop.Run(ctx, msgs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		history = append(history,
			model.Message{Role: model.RoleUser, Content: input},
			model.Message{Role: model.RoleAssistant, Content: answer},
		)
		fmt.Printf("assistant> %s\n\n", answer)
	}
	return scanner.Err()
}

func sortedServers(cfg *config.Config) []config.ServerDefinition {
	defs := make([]config.ServerDefinition, 0, len(cfg.Servers))
	for _, def := range cfg.Servers {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func printServers(mgr *pool.Manager) {
	for _, s := range mgr.Snapshot() {
		line := fmt.Sprintf("%s\t%s\tpriority=%d\tattempts=%d", s.Name, s.Status, s.Priority, s.ConnectionAttempts)
		if s.LastError != "" {
			line += "\tlast_error=" + s.LastError
		}
		fmt.Println(line)
	}
}

func printTools(ctx context.Context, cat *toolcatalog.Catalog) {
	for _, t := range cat.ListAll(ctx) {
		fmt.Printf("%s\t(%s)\t%s\n", t.Name, t.Server, t.Description)
	}
}
