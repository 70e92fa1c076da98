package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/anvh2/sentiment-trading/internal/logger"
	"go.uber.org/zap"
	tb "gopkg.in/telebot.v3"
)

// TelegramSink delivers alerts to a chat channel.
type TelegramSink struct {
	logger *logger.Logger
	bot    *tb.Bot
	chatID int64
}

func NewTelegramSink(logger *logger.Logger, token string, chatID int64) (*TelegramSink, error) {
	setting := tb.Settings{
		Token: token,
		Poller: &tb.LongPoller{
			Timeout: 10 * time.Second,
		},
	}

	bot, err := tb.NewBot(setting)
	if err != nil {
		logger.Error("failed to new telegram bot", zap.Error(err))
		return nil, err
	}

	go bot.Start()

	return &TelegramSink{
		logger: logger,
		bot:    bot,
		chatID: chatID,
	}, nil
}

func (t *TelegramSink) SendAlert(ctx context.Context, alert *Alert) error {
	msg := fmt.Sprintf("[%s/%s] %s", alert.Kind, alert.Severity, alert.Message)
	for key, value := range alert.Fields {
		msg += fmt.Sprintf("\n\t%s: %v", key, value)
	}

	resp, err := t.bot.Send(&tb.User{ID: t.chatID}, msg)
	if err != nil {
		t.logger.Error("[TelegramSink] failed to send message", zap.Any("message", msg), zap.Error(err))
		return err
	}

	t.logger.Info("[TelegramSink] push message success", zap.Any("messageId", resp.ID))
	return nil
}

func (t *TelegramSink) Stop() {
	t.bot.Stop()
}
