// Package engine owns the conversation state machine: it validates each user
// input against the current state, mutates the scratch report, and decides
// the next state. Replies are returned as declarative effects; all network
// I/O lives in the injected collaborators.
package engine

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"reportbot/internal/media"
	"reportbot/internal/model"
	"reportbot/internal/ops"
	"reportbot/internal/phrases"
)

const doneButtonKey = "done_button"

// Surfaced verbatim with the technical detail, like the legacy bot: a lost
// report must be debuggable from the chat itself.
const finalizeErrorPrefix = "Something went wrong while uploading your report. Here is the technical information:\n"

type MediaRelay interface {
	Relay(ctx context.Context, up media.Upload) (model.Media, error)
}

type RecordStore interface {
	Create(ctx context.Context, rep *model.ScratchReport) (string, error)
}

type Preferences interface {
	Language(ctx context.Context, username string) string
	Remember(ctx context.Context, username, language string)
	Forget(ctx context.Context, username string)
}

// Config is the immutable conversation configuration.
type Config struct {
	// Languages lists enabled language codes in prompt order.
	Languages []string
	// Actions lists enabled action phrase keys in prompt order.
	Actions       []string
	MediaRequired bool
}

type Engine struct {
	cfg       Config
	languages map[string]bool
	table     *phrases.Table
	relay     MediaRelay
	store     RecordStore
	prefs     Preferences
	log       *zap.Logger
}

func New(cfg Config, table *phrases.Table, relay MediaRelay, store RecordStore, prefs Preferences, log *zap.Logger) *Engine {
	enabled := make(map[string]bool, len(cfg.Languages))
	for _, lang := range cfg.Languages {
		enabled[lang] = true
	}
	return &Engine{
		cfg:       cfg,
		languages: enabled,
		table:     table,
		relay:     relay,
		store:     store,
		prefs:     prefs,
		log:       log.Named("engine"),
	}
}

// Start begins a conversation: captures the reporter identity, consults the
// preference cache, and short-circuits the language and action prompts when
// they are already decided.
func (e *Engine) Start(ctx context.Context, conv *model.Conversation, reporter model.Reporter) []Effect {
	conv.Report = &model.ScratchReport{
		Reporter:  reporter,
		StartedAt: time.Now(),
	}

	if lang := e.prefs.Language(ctx, reporter.Username); lang != "" {
		conv.Report.Language = lang
	}
	if len(e.cfg.Actions) == 1 {
		conv.Report.Action = e.cfg.Actions[0]
	}

	ops.ConversationsStarted.Inc()
	e.log.Info("conversation started",
		zap.Int64("chat", conv.ChatID),
		zap.String("user", reporter.Username))

	return e.promptLanguage(conv)
}

// Handle dispatches one input to the handler for the conversation's current
// state. Validation and upload failures never escape: they become retry
// replies in the same state.
func (e *Engine) Handle(ctx context.Context, conv *model.Conversation, input model.Input) []Effect {
	if conv.Report == nil {
		return nil
	}

	switch input.Kind {
	case model.InputCancel:
		return e.cancel(conv)
	case model.InputReset:
		return e.reset(ctx, conv)
	}

	switch conv.State {
	case model.StateLanguage:
		return e.handleLanguage(ctx, conv, input)
	case model.StateAction:
		return e.handleAction(conv, input)
	case model.StateDescription:
		return e.handleDescription(conv, input)
	case model.StateMedia:
		return e.handleMedia(ctx, conv, input)
	case model.StateLocation:
		return e.handleLocation(ctx, conv, input)
	}
	return nil
}

// UploadNotice is sent by the transport before a blob download and relay
// begin, so the user is not left waiting in silence during a slow upload.
func (e *Engine) UploadNotice(conv *model.Conversation) []Effect {
	if conv.Report == nil {
		return nil
	}
	return []Effect{reply(e.table.Get("wait_for_media", conv.Report.Language))}
}

// BusyNotice is the reply for input that had to be turned away because the
// conversation is still processing earlier messages. The conversation state
// is owned by its worker at that point, so the notice uses the default
// language.
func (e *Engine) BusyNotice() []Effect {
	return []Effect{reply(e.table.Get("busy_phrase", ""))}
}

func (e *Engine) handleLanguage(ctx context.Context, conv *model.Conversation, input model.Input) []Effect {
	rep := conv.Report

	lang, err := e.table.LanguageByName(input.Text)
	if input.Kind != model.InputText || err != nil || !e.languages[lang] {
		e.log.Debug("unknown language", zap.String("reply", input.Text))
		effects := []Effect{reply(e.table.Get("unknown_language", rep.Language))}
		return append(effects, e.promptLanguage(conv)...)
	}

	rep.Language = lang
	e.prefs.Remember(ctx, rep.Reporter.Username, lang)

	effects := []Effect{reply(e.table.Get("intro_phrase", lang))}
	return append(effects, e.promptAction(conv)...)
}

func (e *Engine) handleAction(conv *model.Conversation, input model.Input) []Effect {
	rep := conv.Report

	action, err := e.table.Identify(input.Text, e.cfg.Actions...)
	if input.Kind != model.InputText || err != nil {
		e.log.Debug("unknown action", zap.String("reply", input.Text))
		effects := []Effect{reply(e.table.Get("unknown_action", rep.Language))}
		return append(effects, e.promptAction(conv)...)
	}

	rep.Action = action
	return e.promptDescription(conv)
}

func (e *Engine) handleDescription(conv *model.Conversation, input model.Input) []Effect {
	if input.Kind != model.InputText {
		return e.promptDescription(conv)
	}
	conv.Report.Description = input.Text
	return e.promptMedia(conv)
}

func (e *Engine) handleMedia(ctx context.Context, conv *model.Conversation, input model.Input) []Effect {
	rep := conv.Report

	switch input.Kind {
	case model.InputText:
		// Fixed control phrases win over freeform text.
		if _, err := e.table.Identify(input.Text, doneButtonKey); err == nil {
			if e.cfg.MediaRequired && len(rep.Media) == 0 {
				return []Effect{e.doneKeyboard("media_required", rep.Language)}
			}
			return e.promptLocation(conv)
		}
		rep.Comments = append(rep.Comments, input.Text)
		return []Effect{e.doneKeyboard("comment_saved", rep.Language)}

	case model.InputPhoto, model.InputVideo:
		item, err := e.relayInput(ctx, conv, input, media.PrefixUserMedia)
		if err != nil {
			ops.RelayFailures.Inc()
			e.log.Warn("media relay failed", zap.Int64("chat", conv.ChatID), zap.Error(err))
			return []Effect{e.doneKeyboard("media_error", rep.Language)}
		}
		rep.Media = append(rep.Media, item)
		ops.MediaRelayed.WithLabelValues(string(item.Kind)).Inc()

		confirm := "photo_uploaded"
		if item.Kind == model.MediaVideo {
			confirm = "video_uploaded"
		}
		return []Effect{e.doneKeyboard(confirm, rep.Language)}
	}

	return []Effect{e.doneKeyboard("media_error", rep.Language)}
}

func (e *Engine) handleLocation(ctx context.Context, conv *model.Conversation, input model.Input) []Effect {
	rep := conv.Report

	switch input.Kind {
	case model.InputLocation:
		rep.Location = model.Location{
			Coordinates: &model.Coordinates{Lat: input.Lat, Lon: input.Lon},
		}
		return e.finalize(ctx, conv)

	case model.InputPhoto:
		item, err := e.relayInput(ctx, conv, input, media.PrefixLocationPhoto)
		if err != nil {
			ops.RelayFailures.Inc()
			e.log.Warn("location photo relay failed", zap.Int64("chat", conv.ChatID), zap.Error(err))
			return []Effect{reply(e.table.Get("location_error", rep.Language))}
		}
		rep.Location = model.Location{PhotoURL: item.URL}
		return e.finalize(ctx, conv)

	case model.InputText:
		loc, ok := parseLocationText(input.Text)
		if !ok {
			return []Effect{reply(e.table.Get("location_error", rep.Language))}
		}
		rep.Location = loc
		return e.finalize(ctx, conv)
	}

	return []Effect{reply(e.table.Get("location_error", rep.Language))}
}

// finalize persists the completed report in a single create call and ends
// the conversation. The scratch report is discarded whether or not the call
// succeeds; there is no automatic retry.
func (e *Engine) finalize(ctx context.Context, conv *model.Conversation) []Effect {
	rep := conv.Report
	defer e.discard(conv)

	id, err := e.store.Create(ctx, rep)
	if err != nil {
		ops.FinalizeFailures.Inc()
		e.log.Error("finalize failed",
			zap.Int64("chat", conv.ChatID),
			zap.String("action", rep.Action),
			zap.Error(err))
		return []Effect{clearKeyboard(finalizeErrorPrefix + err.Error())}
	}

	e.prefs.Remember(ctx, rep.Reporter.Username, rep.Language)
	ops.ConversationsFinalized.WithLabelValues(rep.Action).Inc()
	e.log.Info("report persisted",
		zap.Int64("chat", conv.ChatID),
		zap.String("record", id),
		zap.String("action", rep.Action),
		zap.Int("media", len(rep.Media)))

	return []Effect{clearKeyboard(e.table.Get("location_done", rep.Language))}
}

func (e *Engine) cancel(conv *model.Conversation) []Effect {
	lang := conv.Report.Language
	ops.ConversationsCancelled.Inc()
	e.log.Info("conversation cancelled", zap.Int64("chat", conv.ChatID))
	e.discard(conv)
	return []Effect{clearKeyboard(e.table.Get("cancel_phrase", lang))}
}

func (e *Engine) reset(ctx context.Context, conv *model.Conversation) []Effect {
	lang := conv.Report.Language
	e.prefs.Forget(ctx, conv.Report.Reporter.Username)
	e.discard(conv)
	return []Effect{clearKeyboard(e.table.Get("reset_done", lang))}
}

func (e *Engine) discard(conv *model.Conversation) {
	conv.State = model.StateDone
	conv.Report = nil
}

func (e *Engine) relayInput(ctx context.Context, conv *model.Conversation, input model.Input, prefix string) (model.Media, error) {
	rep := conv.Report

	kind := model.MediaPhoto
	if input.Kind == model.InputVideo {
		kind = model.MediaVideo
	}

	identity := rep.Reporter.Username
	if identity == "" {
		identity = strconv.FormatInt(conv.ChatID, 10)
	}

	return e.relay.Relay(ctx, media.Upload{
		Blob:      input.Blob,
		Kind:      kind,
		Prefix:    prefix,
		Identity:  identity,
		Timestamp: rep.StartedAt,
		Width:     input.Width,
		Height:    input.Height,
	})
}

// promptLanguage asks for a language, or skips ahead when one is already
// resolved from a cached preference.
func (e *Engine) promptLanguage(conv *model.Conversation) []Effect {
	if conv.Report.Language != "" {
		return e.promptAction(conv)
	}

	text := ""
	rows := make([][]string, 0, len(e.cfg.Languages))
	for _, lang := range e.cfg.Languages {
		text += e.table.Get("open_phrase", lang) + "\n"
		rows = append(rows, []string{e.table.LanguageName(lang)})
	}

	conv.State = model.StateLanguage
	return []Effect{keyboard(text, rows, "")}
}

// promptAction asks which action to take, or skips ahead when only one is
// configured.
func (e *Engine) promptAction(conv *model.Conversation) []Effect {
	rep := conv.Report
	if rep.Action != "" {
		return e.promptDescription(conv)
	}

	row := make([]string, 0, len(e.cfg.Actions))
	for _, action := range e.cfg.Actions {
		row = append(row, e.table.Get(action, rep.Language))
	}

	conv.State = model.StateAction
	return []Effect{keyboard(e.table.Get("action_phrase", rep.Language), [][]string{row}, "")}
}

func (e *Engine) promptDescription(conv *model.Conversation) []Effect {
	conv.State = model.StateDescription
	return []Effect{clearKeyboard(e.table.Get("description_phrase", conv.Report.Language))}
}

func (e *Engine) promptMedia(conv *model.Conversation) []Effect {
	conv.State = model.StateMedia
	return []Effect{reply(e.table.Get("media_phrase", conv.Report.Language))}
}

func (e *Engine) promptLocation(conv *model.Conversation) []Effect {
	conv.State = model.StateLocation
	return []Effect{clearKeyboard(e.table.Get("location_phrase", conv.Report.Language))}
}

func (e *Engine) doneKeyboard(key, lang string) Effect {
	done := e.table.Get(doneButtonKey, lang)
	return keyboard(e.table.Get(key, lang), [][]string{{done}}, "Done?")
}
