package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/mythwright/nexus-config-backup/cmd"
	"github.com/mythwright/nexus-config-backup/pkg/buildinfo"
	"github.com/mythwright/nexus-config-backup/pkg/hints"
	"github.com/mythwright/nexus-config-backup/pkg/plog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		switch {
		case hints.IsHint(err):
			plog.Info(buildinfo.Name+" finished without changes", "reason", err)
			return
		case errors.Is(err, context.Canceled):
			plog.Warn(buildinfo.Name + " was canceled")
			os.Exit(130)
		}
		plog.Error(buildinfo.Name+" failed", "error", err)
		os.Exit(1)
	}
}
