package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"def-gateway/src/config"
	"def-gateway/src/internal/common"
	"def-gateway/src/server"
	"def-gateway/src/utils"
)

func runServeCmd(cmd *cobra.Command, args []string) error {
	return RunServe(configPath)
}

func runResolveCmd(cmd *cobra.Command, args []string) error {
	return RunResolve(configPath, args[0], line, column, wait)
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	return RunStatus(configPath)
}

func runConfigCmd(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

func runConfigGenCmd(cmd *cobra.Command, args []string) error {
	path := outPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	if err := config.GenerateDefaultConfig(path); err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}
	common.CLILogger.Info("Wrote default configuration to %s", path)
	return nil
}

// RunServe starts the gateway and blocks until interrupted
func RunServe(configPath string) error {
	cfg := LoadConfigWithFallback(configPath)

	gateway := server.NewGateway(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	common.CLILogger.Info("Definition gateway running over %s", cfg.Workspace.Root)
	common.CLILogger.Info("Analysis session: %s", cfg.Session.Command)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	common.CLILogger.Info("Received shutdown signal, stopping gateway...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan error, 1)
	go func() {
		done <- gateway.Stop()
	}()

	select {
	case err := <-done:
		if err != nil {
			common.CLILogger.Warn("Gateway stopped with error: %v", err)
		} else {
			common.CLILogger.Info("Gateway stopped successfully")
		}
	case <-shutdownCtx.Done():
		common.CLILogger.Warn("Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}

	return nil
}

// RunResolve performs a one-shot definition lookup and prints the result
func RunResolve(configPath, path string, line, column int, wait bool) error {
	if line < 1 || column < 1 {
		return fmt.Errorf("line and column are one-based")
	}

	cfg := LoadConfigWithFallback(configPath)
	gateway := server.NewGateway(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}
	defer func() {
		if err := gateway.Stop(); err != nil {
			common.CLILogger.Warn("Gateway stop: %v", err)
		}
	}()

	mode := server.Foreground
	if wait {
		mode = server.Background
	}

	file := utils.FilePathToURI(path)
	result, err := gateway.ResolveAt(ctx, file, line, column, mode)
	if err != nil {
		return err
	}

	fmt.Println(result.String())
	return nil
}

// RunStatus prints session and cache status
func RunStatus(configPath string) error {
	cfg := LoadConfigWithFallback(configPath)

	fmt.Printf("Workspace:  %s\n", cfg.Workspace.Root)
	fmt.Printf("Session:    %s", cfg.Session.Command)
	for _, arg := range cfg.Session.Args {
		fmt.Printf(" %s", arg)
	}
	fmt.Println()
	fmt.Printf("Extensions: %v\n", cfg.Workspace.Extensions)
	fmt.Printf("Budgets:    read %v, wait ceiling %v, poll %v\n",
		cfg.ReadBudget(), cfg.WaitCeiling(), cfg.PollInterval())
	return nil
}
