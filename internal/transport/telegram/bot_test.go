package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"finman/internal/dialog"
	"finman/pkg/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.MessageConfig
	fileURL string
	updates chan tgbotapi.Update
	stopped bool
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + "/" + fileID, nil
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

type submitted struct {
	mu  sync.Mutex
	ins []dialog.Inbound
}

func (s *submitted) Submit(_ context.Context, in dialog.Inbound) {
	s.mu.Lock()
	s.ins = append(s.ins, in)
	s.mu.Unlock()
}

func newTestBot(api *fakeAPI, allowed ...int64) *Bot {
	return newBot(api, &config.TelegramConfig{AllowedUsers: allowed, PollTimeout: 1}, zap.NewNop())
}

func privateMessage(from int64, id int) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: id,
		From:      &tgbotapi.User{ID: from},
		Chat:      &tgbotapi.Chat{ID: from, Type: "private"},
	}
}

func TestUserIDRoundTrip(t *testing.T) {
	id, err := chatID(UserID(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	_, err = chatID("2f0c1a4e-uuid")
	assert.ErrorIs(t, err, ErrInvalidUserID)
	_, err = chatID("tg:abc")
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestHandleUpdate_Text(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(api)
	sub := &submitted{}

	msg := privateMessage(7, 100)
	msg.Text = "Coffee 50"
	bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg}, sub)

	require.Len(t, sub.ins, 1)
	assert.Equal(t, dialog.Inbound{ID: "100", UserID: "tg:7", Content: dialog.Content{Text: "Coffee 50"}}, sub.ins[0])
	assert.Empty(t, api.sent)
}

func TestHandleUpdate_StartCommand(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(api)
	sub := &submitted{}

	msg := privateMessage(7, 1)
	msg.Text = "/start"
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}
	bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg}, sub)

	assert.Empty(t, sub.ins)
	require.Len(t, api.sent, 1)
	assert.Equal(t, msgWelcome, api.sent[0].Text)
	assert.Equal(t, int64(7), api.sent[0].ChatID)
}

func TestHandleUpdate_PhotoUsesLargestSize(t *testing.T) {
	var requested string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	api := &fakeAPI{fileURL: srv.URL}
	bot := newTestBot(api)
	sub := &submitted{}

	msg := privateMessage(7, 5)
	msg.Caption = "lunch"
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}
	bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg}, sub)

	require.Len(t, sub.ins, 1)
	require.NotNil(t, sub.ins[0].Fetch)
	assert.Empty(t, requested, "download happens on the user's worker")

	c, err := sub.ins[0].Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/large", requested)
	assert.True(t, c.IsImage())
	assert.Equal(t, "lunch", c.Text)
	assert.Equal(t, []byte("jpeg-bytes"), c.Image)
	assert.Equal(t, "image/jpeg", c.MIME)
}

func TestHandleUpdate_PDFDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	api := &fakeAPI{fileURL: srv.URL}
	bot := newTestBot(api)
	sub := &submitted{}

	msg := privateMessage(7, 6)
	msg.Document = &tgbotapi.Document{FileID: "doc", MimeType: "application/pdf"}
	bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg}, sub)

	require.Len(t, sub.ins, 1)
	c, err := sub.ins[0].Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", c.MIME)
	assert.Equal(t, []byte("%PDF-1.4"), c.Image)
}

func TestHandleUpdate_DownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	api := &fakeAPI{fileURL: srv.URL}
	bot := newTestBot(api)
	sub := &submitted{}

	msg := privateMessage(7, 8)
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "gone"}}
	bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg}, sub)

	require.Len(t, sub.ins, 1)
	_, err := sub.ins[0].Fetch(context.Background())
	assert.Error(t, err)
	assert.Empty(t, api.sent)
}

func TestRun_SlowDownloadDoesNotBlockOtherUsers(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()
	defer close(release)

	api := &fakeAPI{fileURL: srv.URL, updates: make(chan tgbotapi.Update, 2)}
	bot := newTestBot(api)
	sub := &submitted{}

	photo := privateMessage(1, 1)
	photo.Photo = []tgbotapi.PhotoSize{{FileID: "slow"}}
	text := privateMessage(2, 1)
	text.Text = "Coffee 50"
	api.updates <- tgbotapi.Update{Message: photo}
	api.updates <- tgbotapi.Update{Message: text}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bot.Run(ctx, sub)

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return len(sub.ins) == 2
	}, 500*time.Millisecond, 5*time.Millisecond)

	sub.mu.Lock()
	defer sub.mu.Unlock()
	assert.Equal(t, "tg:2", sub.ins[1].UserID)
	assert.Equal(t, "Coffee 50", sub.ins[1].Content.Text)
}

func TestHandleUpdate_Unsupported(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(api)
	sub := &submitted{}

	msg := privateMessage(7, 9)
	msg.Sticker = &tgbotapi.Sticker{FileID: "s"}
	bot.handleUpdate(context.Background(), tgbotapi.Update{Message: msg}, sub)

	assert.Empty(t, sub.ins)
	require.Len(t, api.sent, 1)
	assert.Equal(t, msgUnsupported, api.sent[0].Text)
}

func TestHandleUpdate_Filtering(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(api, 1)
	sub := &submitted{}

	stranger := privateMessage(2, 1)
	stranger.Text = "Coffee 50"
	bot.handleUpdate(context.Background(), tgbotapi.Update{Message: stranger}, sub)

	group := privateMessage(1, 2)
	group.Chat.Type = "group"
	group.Text = "Coffee 50"
	bot.handleUpdate(context.Background(), tgbotapi.Update{Message: group}, sub)

	bot.handleUpdate(context.Background(), tgbotapi.Update{}, sub)

	assert.Empty(t, sub.ins)
	assert.Empty(t, api.sent)
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	api := &fakeAPI{updates: make(chan tgbotapi.Update, 1)}
	bot := newTestBot(api)
	sub := &submitted{}

	msg := privateMessage(3, 1)
	msg.Text = "Taxi 300"
	api.updates <- tgbotapi.Update{Message: msg}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		bot.Run(ctx, sub)
		close(done)
	}()

	require.Eventually(t, func() bool {
		sub.mu.Lock()
		defer sub.mu.Unlock()
		return len(sub.ins) == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.True(t, api.stopped)
}

func TestSend(t *testing.T) {
	api := &fakeAPI{}
	bot := newTestBot(api)

	require.NoError(t, bot.Send(context.Background(), "tg:99", "Saved"))
	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(99), api.sent[0].ChatID)

	assert.ErrorIs(t, bot.Send(context.Background(), "web-user", "x"), ErrInvalidUserID)
}
