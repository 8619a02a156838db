package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"finman/internal/dialog"
	"finman/pkg/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	userIDPrefix = "tg:"
	maxFileSize  = 10 << 20

	msgWelcome = "Hi! Send me what you spent, for example \"Coffee 50\" or \"Taxi to airport 450\", " +
		"or a photo of a receipt. I will ask if something is unclear and save the expense once you confirm."
	msgUnsupported = "Sorry, I can only read text messages, photos and PDF receipts."
)

var ErrInvalidUserID = errors.New("not a telegram user id")

// botAPI is the part of *tgbotapi.BotAPI the transport uses.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
	StopReceivingUpdates()
}

type Submitter interface {
	Submit(ctx context.Context, in dialog.Inbound)
}

// Bot delivers private Telegram chats to the dialog engine and sends its
// replies back. It implements dialog.Sender.
type Bot struct {
	api         botAPI
	allowed     map[int64]bool
	pollTimeout int
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewBot(cfg *config.TelegramConfig, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("Telegram bot authorized", zap.String("username", api.Self.UserName))
	return newBot(api, cfg, logger), nil
}

func newBot(api botAPI, cfg *config.TelegramConfig, logger *zap.Logger) *Bot {
	allowed := make(map[int64]bool, len(cfg.AllowedUsers))
	for _, id := range cfg.AllowedUsers {
		allowed[id] = true
	}
	return &Bot{
		api:         api,
		allowed:     allowed,
		pollTimeout: cfg.PollTimeout,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
	}
}

// UserID is the dialog user id of a Telegram user.
func UserID(telegramID int64) string {
	return userIDPrefix + strconv.FormatInt(telegramID, 10)
}

func chatID(userID string) (int64, error) {
	if !strings.HasPrefix(userID, userIDPrefix) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(userID, userIDPrefix), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}
	return id, nil
}

func (b *Bot) Send(_ context.Context, userID, text string) error {
	id, err := chatID(userID)
	if err != nil {
		return err
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(id, text)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// Run long-polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context, submit Submitter) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollTimeout

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update, submit)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update, submit Submitter) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	if !msg.Chat.IsPrivate() {
		b.logger.Debug("Ignoring non-private chat", zap.Int64("chat_id", msg.Chat.ID))
		return
	}
	if len(b.allowed) > 0 && !b.allowed[msg.From.ID] {
		b.logger.Warn("Message from user outside the allow-list", zap.Int64("telegram_id", msg.From.ID))
		return
	}

	userID := UserID(msg.From.ID)
	in := dialog.Inbound{
		ID:     strconv.Itoa(msg.MessageID),
		UserID: userID,
	}

	switch {
	case msg.IsCommand() && (msg.Command() == "start" || msg.Command() == "help"):
		b.reply(ctx, userID, msgWelcome)
		return
	case len(msg.Photo) > 0:
		// the last size is the largest
		photo := msg.Photo[len(msg.Photo)-1]
		in.Fetch = b.attachment(photo.FileID, msg.Caption, "image/jpeg")
	case msg.Document != nil && isReceiptDocument(msg.Document.MimeType):
		in.Fetch = b.attachment(msg.Document.FileID, msg.Caption, msg.Document.MimeType)
	case strings.TrimSpace(msg.Text) != "":
		in.Content = dialog.Content{Text: msg.Text}
	default:
		b.reply(ctx, userID, msgUnsupported)
		return
	}

	submit.Submit(ctx, in)
}

func (b *Bot) reply(ctx context.Context, userID, text string) {
	if err := b.Send(ctx, userID, text); err != nil {
		b.logger.Error("Failed to send reply", zap.String("user_id", userID), zap.Error(err))
	}
}

// attachment defers the download to the user's dispatcher worker so the
// update loop never waits on a file transfer.
func (b *Bot) attachment(fileID, caption, mimeType string) func(context.Context) (dialog.Content, error) {
	return func(ctx context.Context) (dialog.Content, error) {
		data, err := b.download(ctx, fileID)
		if err != nil {
			return dialog.Content{}, err
		}
		return dialog.Content{Text: caption, Image: data, MIME: mimeType}, nil
	}
}

func isReceiptDocument(mimeType string) bool {
	return mimeType == "application/pdf" || strings.HasPrefix(mimeType, "image/")
}

func (b *Bot) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", maxFileSize)
	}
	return data, nil
}
