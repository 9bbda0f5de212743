package app

import (
	"context"
	"log"
	"os"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Notifier delivers operator notifications. Implementations are best-effort:
// delivery failures are logged and swallowed, never returned to the caller.
type Notifier interface {
	Notify(ctx context.Context, message string)
	NotifyVideo(ctx context.Context, videoPath, caption string)
}

// TelegramNotifier sends notifications to the operator chat.
type TelegramNotifier struct {
	bot    *telego.Bot
	chatID int64
}

func NewTelegramNotifier(bot *telego.Bot, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (n *TelegramNotifier) Notify(ctx context.Context, message string) {
	_, err := n.bot.SendMessage(ctx, tu.Message(tu.ID(n.chatID), message))
	if err != nil {
		log.Printf("telegram notification failed: %v", err)
	}
}

func (n *TelegramNotifier) NotifyVideo(ctx context.Context, videoPath, caption string) {
	file, err := os.Open(videoPath)
	if err != nil {
		log.Printf("telegram video notification failed: %v", err)
		return
	}
	defer file.Close()

	params := tu.Video(tu.ID(n.chatID), tu.File(file)).WithCaption(caption)
	if _, err := n.bot.SendVideo(ctx, params); err != nil {
		log.Printf("telegram video notification failed: %v", err)
	}
}

// NopNotifier is used when no bot token is configured.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, message string) {
	log.Printf("notification (no telegram configured): %s", message)
}

func (NopNotifier) NotifyVideo(ctx context.Context, videoPath, caption string) {
	log.Printf("video notification (no telegram configured): %s %s", videoPath, caption)
}
