package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// AdminBot is the Telegram control surface. It mirrors the HTTP API for
// operators who live in the chat: status, channel listing, manual triggers
// and history resets. Only the configured admin chat is served.
type AdminBot struct {
	bot         *telego.Bot
	adminChatID int64
	runner      *Runner
	stats       *StatsService
	ledger      Ledger
}

func NewAdminBot(bot *telego.Bot, adminChatID int64, runner *Runner, stats *StatsService, ledger Ledger) *AdminBot {
	return &AdminBot{
		bot:         bot,
		adminChatID: adminChatID,
		runner:      runner,
		stats:       stats,
		ledger:      ledger,
	}
}

// Run consumes updates until ctx is canceled.
func (b *AdminBot) Run(ctx context.Context) error {
	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}
	log.Printf("Admin bot listening for commands")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *AdminBot) handleUpdate(ctx context.Context, update telego.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	if msg.Chat.ID != b.adminChatID {
		log.Printf("Ignoring command from unauthorized chat %d", msg.Chat.ID)
		return
	}

	command, arg := splitCommand(msg.Text)
	switch command {
	case "/start", "/help":
		b.reply(ctx, helpText)
	case "/status":
		b.reply(ctx, b.statusText())
	case "/channels":
		b.reply(ctx, b.channelsText(ctx))
	case "/run":
		if arg == "" {
			b.reply(ctx, "Usage: /run <channel_name>")
			return
		}
		b.runChannel(ctx, arg)
	case "/run_all":
		b.runAll(ctx)
	case "/reset_history":
		b.resetHistory(ctx, arg)
	default:
		b.reply(ctx, "Unknown command. Use /help.")
	}
}

const helpText = `Commands:
/status - job state
/channels - per-channel upload stats
/run <name> - process one channel now
/run_all - process every channel now
/reset_history [name] - clear upload history
/help - this message`

func (b *AdminBot) statusText() string {
	status := b.runner.Status()
	if status.Running {
		text := "⏳ A run is in flight"
		if status.Job != "" {
			text += " (" + status.Job + ")"
		}
		if status.StartedAt != nil {
			text += ", started " + status.StartedAt.Format("15:04:05 MST")
		}
		return text
	}
	if status.FinishedAt != nil {
		return fmt.Sprintf("💤 Idle, last cycle finished at %s", status.FinishedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return "💤 Idle, no cycle has run yet"
}

func (b *AdminBot) channelsText(ctx context.Context) string {
	stats, err := b.stats.AllStats(ctx)
	if err != nil {
		return fmt.Sprintf("Failed to load stats: %v", err)
	}
	if len(stats) == 0 {
		return "No channels configured."
	}
	var sb strings.Builder
	for _, st := range stats {
		fmt.Fprintf(&sb, "• %s (%s): %d total, %d/%d in last 24h",
			st.ChannelName, st.Mode, st.TotalUploads, st.UploadsLast24h, st.UploadsPerDay)
		if st.LastUploadAt != nil {
			fmt.Fprintf(&sb, ", last %s", st.LastUploadAt.Format("2006-01-02 15:04"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *AdminBot) runChannel(ctx context.Context, name string) {
	if err := b.runner.TriggerChannel(ctx, name); err != nil {
		b.reply(ctx, triggerErrorText(err))
		return
	}
	b.reply(ctx, fmt.Sprintf("Run started for %s. Check /status for progress.", name))
}

func (b *AdminBot) runAll(ctx context.Context) {
	if err := b.runner.TriggerCycle(ctx); err != nil {
		b.reply(ctx, triggerErrorText(err))
		return
	}
	b.reply(ctx, "Full cycle started. Check /status for progress.")
}

func (b *AdminBot) resetHistory(ctx context.Context, name string) {
	if err := b.ledger.Reset(ctx, name); err != nil {
		b.reply(ctx, fmt.Sprintf("Reset failed: %v", err))
		return
	}
	if name == "" {
		b.reply(ctx, "Upload history cleared for all channels.")
		return
	}
	b.reply(ctx, fmt.Sprintf("Upload history cleared for %s.", name))
}

func (b *AdminBot) reply(ctx context.Context, text string) {
	if _, err := b.bot.SendMessage(ctx, tu.Message(tu.ID(b.adminChatID), text)); err != nil {
		log.Printf("admin bot reply failed: %v", err)
	}
}

func triggerErrorText(err error) string {
	if errors.Is(err, ErrAlreadyRunning) {
		return "⏳ A cycle is already running, try again later."
	}
	return fmt.Sprintf("Run failed: %v", err)
}

// splitCommand separates "/run name" into the command and its argument, and
// strips the @botname suffix Telegram adds in groups.
func splitCommand(text string) (string, string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", ""
	}
	command := fields[0]
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	return command, strings.Join(fields[1:], " ")
}
