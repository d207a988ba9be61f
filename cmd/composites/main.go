package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/forest-guardian/monthly-composites/internal/notification"
	"github.com/forest-guardian/monthly-composites/internal/ui"
)

func main() {
	app := &application{}
	defer func() {
		if r := recover(); r != nil {
			pc, file, line, ok := runtime.Caller(3)
			location := "Unknown location"
			if ok {
				location = fmt.Sprintf("%s:%d in %s", file, line, runtime.FuncForPC(pc).Name())
			}
			ui.PrintError(fmt.Sprintf("PANIC: %v\nLocation: %s", r, location))

			if app.cfg != nil {
				message := fmt.Sprintf("Composites CLI panic:\n\n%v\n\nLocation: %s\n\nStack trace:\n%s", r, location, debug.Stack())
				discord := notification.NewDiscord(app.cfg.DiscordErrorNotificationURL, app.cfg.DiscordSuccessNotificationURL)
				if err := discord.SendError(context.Background(), message); err != nil {
					ui.PrintError(fmt.Sprintf("Failed to send notification: %s", err.Error()))
				}
			}
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(app).ExecuteContext(ctx)
	stop()
	if err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
