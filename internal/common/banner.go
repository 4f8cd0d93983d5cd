package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorMagenta).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("DREAMFORGE")
	b.PrintCenteredText("GPU Image Generation Job Orchestrator")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Service URL", serviceURL, 15)
	b.PrintKeyValue("Queue Mode", queueModeLabel(config), 15)
	b.PrintKeyValue("SQLite Path", config.SQLite.Path, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("environment", config.Environment).
		Str("service_url", serviceURL).
		Bool("queue_eager", config.Queue.Eager).
		Int("worker_concurrency", config.Queue.Concurrency).
		Msg("dreamforge started")
}

func queueModeLabel(config *Config) string {
	if config.Queue.Eager {
		return "eager (inline)"
	}
	return fmt.Sprintf("async (%d workers)", config.Queue.Concurrency)
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorMagenta).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("DREAMFORGE")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("dreamforge shutting down")
}
