// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package main provides the entry point for the tess command agent.
// It runs a single command, an interactive console, or the HTTP API server
// depending on the flags and subcommand given.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/traylinx/tess/internal/agent"
	"github.com/traylinx/tess/internal/api"
	"github.com/traylinx/tess/internal/buildinfo"
	"github.com/traylinx/tess/internal/config"
	"github.com/traylinx/tess/internal/logging"
	"github.com/traylinx/tess/internal/util"
)

// consoleSessionID keys the console conversation in the history database.
const consoleSessionID = "console"

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

func main() {
	var (
		configPath  string
		command     string
		debug       bool
		showVersion bool
	)

	defaultConfig := os.Getenv("TESS_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "config.yaml"
	}

	flag.StringVar(&configPath, "config", defaultConfig, "Configure File Path")
	flag.StringVar(&command, "c", "", "Run a single command and exit")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = printUsage
	flag.Parse()

	if showVersion {
		fmt.Printf("tess %s (commit %s, built %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.WithError(err).Fatal("failed to get working directory")
	}
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	if debug {
		cfg.Debug = true
	}
	logging.SetLevel(cfg.Debug)
	if err := setupLogOutput(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure log output")
	}

	args := flag.Args()
	if len(args) > 0 {
		switch args[0] {
		case "serve":
			exitOn(runServe(cfg))
			return
		case "providers":
			exitOn(runProviders(cfg, os.Stdout))
			return
		case "skills":
			exitOn(runSkills(cfg, os.Stdout))
			return
		case "hooks":
			exitOn(runHooks(cfg, args[1:], os.Stdout))
			return
		case "help":
			printUsage()
			return
		}
		if command == "" {
			fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	con := newConsole(os.Stdin, os.Stdout)
	a, err := newApp(cfg, con.Confirm)
	if err != nil {
		log.WithError(err).Fatal("failed to start tess")
	}
	defer a.close()

	opts := agent.OptionsFrom(cfg, a.redactor)
	sessionID := logging.NewRequestID()
	if err := a.openHistory(ctx); err != nil {
		log.WithError(err).Warn("conversation history will not be stored")
	} else if a.history != nil {
		opts.Persist = a.history
		sessionID = consoleSessionID
	}
	session := agent.NewSession(sessionID, a.brain, a.dispatcher, opts)
	if err := session.Restore(ctx); err != nil {
		log.WithError(err).Warn("failed to restore conversation history")
	}
	if command != "" {
		reply := session.Handle(ctx, command, con.Print)
		con.PrintReply(reply)
		if !reply.Success {
			a.close()
			os.Exit(1)
		}
		return
	}
	con.Run(ctx, session)
}

func setupLogOutput(cfg *config.Config) error {
	logsDir := cfg.LogsDir
	if cfg.LoggingToFile && logsDir == "" {
		state, err := util.NewStateDir()
		if err != nil {
			return err
		}
		logsDir = state.LogsDir()
	}
	return logging.ConfigureLogOutput(cfg.LoggingToFile, logsDir)
}

func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Remote clients cannot answer confirmation prompts, so dangerous commands are declined.
	a, err := newApp(cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	store := agent.NewStore(a.brain, a.dispatcher, agent.OptionsFrom(cfg, a.redactor))
	server := api.NewServer(cfg, store, a.brain)
	return server.Start(ctx)
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: tess [options] [command]")
	fmt.Println("\nCommands:")
	fmt.Println("  serve          Start the HTTP/WebSocket API")
	fmt.Println("  providers      Show providers and credential status")
	fmt.Println("  skills         List installed Lua skills")
	fmt.Println("  hooks          Inspect and test hooks (see: tess hooks help)")
	fmt.Println("\nWithout a command tess starts an interactive console.")
	fmt.Println("\nOptions:")
	flag.PrintDefaults()
	fmt.Println("\nExamples:")
	fmt.Println("  tess")
	fmt.Println("  tess -c \"open firefox\"")
	fmt.Println("  tess -config ./config.yaml serve")
}
