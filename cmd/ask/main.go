// Command ask answers one price question on the console.
//
//	ask "what's the price of SOL?"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/edibez/tokenagent/internal/app"
	"github.com/edibez/tokenagent/internal/chat"
	"github.com/edibez/tokenagent/internal/config"
	"github.com/edibez/tokenagent/pkg/logger"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	verbose := flag.Bool("v", false, "log to stderr")
	flag.Parse()
	question := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if question == "" {
		fmt.Fprintln(os.Stderr, `usage: ask [-v] "what's the price of SOL?"`)
		os.Exit(2)
	}

	if *verbose {
		if err := logger.Init(cfg.LogLevel); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer logger.Sync()
	}

	ctx := context.Background()
	a, err := app.NewAgent(ctx, cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	session := chat.NewSession(nil)
	session.AddUserMessage(question)
	reply, err := a.Run(ctx, session)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(reply.Text)
}
