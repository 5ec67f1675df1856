// Package transport adapts the Telegram chat platform to the conversation
// engine: it normalizes updates into inputs, downloads submitted media, and
// renders reply effects. Inputs for one chat are processed strictly in
// order by a dedicated worker, so a slow upload never stalls other chats.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"reportbot/internal/engine"
	"reportbot/internal/model"
)

const (
	pollTimeout    = 30
	inputQueueSize = 16
)

type Bot struct {
	api    *tgbotapi.BotAPI
	engine *engine.Engine
	log    *zap.Logger

	mu      sync.Mutex
	workers map[int64]*worker
	wg      sync.WaitGroup
}

// worker serializes one conversation's inputs.
type worker struct {
	conv   *model.Conversation
	inbox  chan *tgbotapi.Message
	closed bool
}

func New(token string, eng *engine.Engine, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("transport: connect: %w", err)
	}
	return &Bot{
		api:     api,
		engine:  eng,
		log:     log.Named("transport"),
		workers: map[int64]*worker{},
	}, nil
}

// Run polls for updates until ctx is cancelled, then waits for in-flight
// conversations to settle.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	b.log.Info("polling started", zap.String("bot", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.closeAll()
			b.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				b.closeAll()
				b.wg.Wait()
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	if msg.IsCommand() && msg.Command() == "start" {
		b.startConversation(ctx, msg)
		return
	}

	b.mu.Lock()
	w, ok := b.workers[msg.Chat.ID]
	b.mu.Unlock()
	if !ok {
		b.handleIdleCommand(ctx, msg)
		return
	}

	select {
	case w.inbox <- msg:
	default:
		b.log.Warn("input queue full, dropping message", zap.Int64("chat", msg.Chat.ID))
		b.send(msg.Chat.ID, b.engine.BusyNotice())
	}
}

// handleIdleCommand services /reset outside a conversation; anything else
// sent outside a conversation is ignored.
func (b *Bot) handleIdleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() || msg.Command() != "reset" {
		return
	}

	conv := &model.Conversation{
		ChatID: msg.Chat.ID,
		State:  model.StateLanguage,
		Report: &model.ScratchReport{Reporter: reporterOf(msg)},
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.send(conv.ChatID, b.engine.Handle(ctx, conv, model.ResetInput()))
	}()
}

func (b *Bot) startConversation(ctx context.Context, msg *tgbotapi.Message) {
	w := &worker{
		conv:  &model.Conversation{ChatID: msg.Chat.ID},
		inbox: make(chan *tgbotapi.Message, inputQueueSize),
	}

	b.mu.Lock()
	if old, ok := b.workers[msg.Chat.ID]; ok && !old.closed {
		old.closed = true
		close(old.inbox)
	}
	b.workers[msg.Chat.ID] = w
	b.mu.Unlock()

	b.wg.Add(1)
	go b.runWorker(ctx, w, reporterOf(msg))
}

func (b *Bot) runWorker(ctx context.Context, w *worker, reporter model.Reporter) {
	defer b.wg.Done()
	defer b.remove(w)

	b.send(w.conv.ChatID, b.engine.Start(ctx, w.conv, reporter))
	if w.conv.State == model.StateDone {
		return
	}

	for msg := range w.inbox {
		if len(msg.Photo) > 0 || msg.Video != nil {
			b.send(w.conv.ChatID, b.engine.UploadNotice(w.conv))
		}
		b.send(w.conv.ChatID, b.engine.Handle(ctx, w.conv, b.toInput(msg)))
		if w.conv.State == model.StateDone {
			return
		}
	}
}

func (b *Bot) remove(w *worker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.workers[w.conv.ChatID] == w {
		delete(b.workers, w.conv.ChatID)
	}
}

func (b *Bot) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.workers {
		if !w.closed {
			w.closed = true
			close(w.inbox)
		}
	}
}

// toInput normalizes a Telegram message. Media blobs are downloaded here,
// inside the conversation's own worker; a failed download yields an empty
// blob the relay rejects, which the engine reports as a media error.
func (b *Bot) toInput(msg *tgbotapi.Message) model.Input {
	switch {
	case msg.IsCommand():
		switch msg.Command() {
		case "cancel":
			return model.CancelInput()
		case "reset":
			return model.ResetInput()
		}
		return model.Input{Kind: model.InputNone}

	case msg.Location != nil:
		return model.LocationInput(msg.Location.Latitude, msg.Location.Longitude)

	case len(msg.Photo) > 0:
		best := msg.Photo[len(msg.Photo)-1]
		blob, err := b.download(best.FileID)
		if err != nil {
			b.log.Warn("photo download failed", zap.Int64("chat", msg.Chat.ID), zap.Error(err))
		}
		return model.PhotoInput(blob, best.Width, best.Height)

	case msg.Video != nil:
		blob, err := b.download(msg.Video.FileID)
		if err != nil {
			b.log.Warn("video download failed", zap.Int64("chat", msg.Chat.ID), zap.Error(err))
		}
		return model.VideoInput(blob)

	case msg.Text != "":
		return model.TextInput(msg.Text)
	}

	return model.Input{Kind: model.InputNone}
}

func (b *Bot) download(fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("file url: %w", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (b *Bot) send(chatID int64, effects []engine.Effect) {
	for _, eff := range effects {
		if eff.Text == "" {
			continue
		}

		msg := tgbotapi.NewMessage(chatID, eff.Text)
		switch {
		case eff.RemoveKeyboard:
			msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		case len(eff.Keyboard) > 0:
			msg.ReplyMarkup = replyKeyboard(eff)
		}

		if _, err := b.api.Send(msg); err != nil {
			b.log.Warn("send failed", zap.Int64("chat", chatID), zap.Error(err))
		}
	}
}

func replyKeyboard(eff engine.Effect) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(eff.Keyboard))
	for _, row := range eff.Keyboard {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, buttons)
	}

	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.OneTimeKeyboard = true
	kb.InputFieldPlaceholder = eff.Placeholder
	return kb
}

func reporterOf(msg *tgbotapi.Message) model.Reporter {
	return model.Reporter{
		FirstName: msg.Chat.FirstName,
		Username:  msg.Chat.UserName,
	}
}
