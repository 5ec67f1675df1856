package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reportbot/internal/media"
	"reportbot/internal/model"
	"reportbot/internal/phrases"
)

const testPhrasesYAML = `
language_name:
  en: English
  ru: Русский

open_phrase:
  en: "Hello! Pick a language."
  ru: "Здравствуйте! Выберите язык."
intro_phrase:
  en: "Thanks, let's report a place."
unknown_language:
  en: "Unknown language, please try again"
action_phrase:
  en: "What would you like to report?"
unknown_action:
  en: "Unknown action, please try again"
report_dirty_place:
  en: "Report a littered place"
report_place_for_urn:
  en: "Suggest a place for an urn"
description_phrase:
  en: "Describe the place."
media_phrase:
  en: "Send photos or videos."
wait_for_media:
  en: "Uploading, please wait..."
  ru: "Загружаем, подождите..."
busy_phrase:
  en: "One moment, still processing..."
photo_uploaded:
  en: "Photo uploaded."
video_uploaded:
  en: "Video uploaded."
media_error:
  en: "Could not process that."
media_required:
  en: "Please attach at least one photo or video."
comment_saved:
  en: "Noted."
done_button:
  en: Done
  ru: Готово
location_phrase:
  en: "Where is the place?"
location_error:
  en: "Could not understand the location."
location_done:
  en: "Report submitted."
cancel_phrase:
  en: "Cancelled."
reset_done:
  en: "Preferences reset."
`

type fakeRelay struct {
	failWith error
	uploads  []media.Upload
}

func (f *fakeRelay) Relay(_ context.Context, up media.Upload) (model.Media, error) {
	if f.failWith != nil {
		return model.Media{}, f.failWith
	}
	f.uploads = append(f.uploads, up)
	return model.Media{
		URL:    fmt.Sprintf("https://cdn.test/%s-%d.bin", up.Prefix, len(f.uploads)),
		Kind:   up.Kind,
		Width:  up.Width,
		Height: up.Height,
	}, nil
}

type fakeStore struct {
	failWith error
	created  []model.ScratchReport
}

func (f *fakeStore) Create(_ context.Context, rep *model.ScratchReport) (string, error) {
	if f.failWith != nil {
		return "", f.failWith
	}
	f.created = append(f.created, *rep)
	return fmt.Sprintf("rec-%d", len(f.created)), nil
}

type fakePrefs struct {
	languages map[string]string
	forgotten []string
}

func (f *fakePrefs) Language(_ context.Context, username string) string {
	return f.languages[username]
}

func (f *fakePrefs) Remember(_ context.Context, username, language string) {
	if f.languages == nil {
		f.languages = map[string]string{}
	}
	f.languages[username] = language
}

func (f *fakePrefs) Forget(_ context.Context, username string) {
	delete(f.languages, username)
	f.forgotten = append(f.forgotten, username)
}

func testTable(t *testing.T) *phrases.Table {
	t.Helper()
	path := filepath.Join(t.TempDir(), "phrases.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPhrasesYAML), 0o644))

	table, err := phrases.Load(path, "en")
	require.NoError(t, err)
	return table
}

type fixture struct {
	engine *Engine
	relay  *fakeRelay
	store  *fakeStore
	prefs  *fakePrefs
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.Languages == nil {
		cfg.Languages = []string{"en", "ru"}
	}
	if cfg.Actions == nil {
		cfg.Actions = []string{"report_dirty_place"}
	}

	relay := &fakeRelay{}
	store := &fakeStore{}
	pref := &fakePrefs{}
	return &fixture{
		engine: New(cfg, testTable(t), relay, store, pref, zap.NewNop()),
		relay:  relay,
		store:  store,
		prefs:  pref,
	}
}

func startConversation(t *testing.T, f *fixture) *model.Conversation {
	t.Helper()
	conv := &model.Conversation{ChatID: 42}
	effects := f.engine.Start(context.Background(), conv, model.Reporter{FirstName: "Narek", Username: "narek"})
	require.NotEmpty(t, effects)
	return conv
}

func allText(effects []Effect) string {
	parts := make([]string, 0, len(effects))
	for _, eff := range effects {
		parts = append(parts, eff.Text)
	}
	return strings.Join(parts, "\n")
}

func TestHappyPathSingleAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)
	assert.Equal(t, model.StateLanguage, conv.State)

	// Single configured action is pre-selected, so language goes straight
	// to the description prompt.
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	assert.Equal(t, model.StateDescription, conv.State)
	assert.Equal(t, "en", conv.Report.Language)
	assert.Equal(t, "report_dirty_place", conv.Report.Action)

	f.engine.Handle(ctx, conv, model.TextInput("Found trash here"))
	assert.Equal(t, model.StateMedia, conv.State)

	f.engine.Handle(ctx, conv, model.PhotoInput([]byte("jpegbytes"), 640, 480))
	assert.Equal(t, model.StateMedia, conv.State)
	require.Len(t, conv.Report.Media, 1)
	assert.Equal(t, model.MediaPhoto, conv.Report.Media[0].Kind)

	f.engine.Handle(ctx, conv, model.TextInput("Done"))
	assert.Equal(t, model.StateLocation, conv.State)

	effects := f.engine.Handle(ctx, conv, model.TextInput("40.1,44.5"))
	assert.Equal(t, model.StateDone, conv.State)
	assert.Nil(t, conv.Report)
	assert.Contains(t, allText(effects), "Report submitted.")

	require.Len(t, f.store.created, 1)
	rep := f.store.created[0]
	require.NotNil(t, rep.Location.Coordinates)
	assert.Equal(t, 40.1, rep.Location.Coordinates.Lat)
	assert.Equal(t, 44.5, rep.Location.Coordinates.Lon)
	assert.Equal(t, "Found trash here", rep.Description)
	assert.Len(t, rep.Media, 1)
	assert.True(t, rep.WellFormed(true))
}

func TestUnknownLanguageRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)

	effects := f.engine.Handle(ctx, conv, model.TextInput("unknownlang-retry text"))
	assert.Equal(t, model.StateLanguage, conv.State)
	assert.Contains(t, allText(effects), "Unknown language")
	assert.Empty(t, conv.Report.Language)

	// A valid pick still works afterwards.
	f.engine.Handle(ctx, conv, model.TextInput("Русский"))
	assert.Equal(t, "ru", conv.Report.Language)
}

func TestActionSelection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{Actions: []string{"report_dirty_place", "report_place_for_urn"}})
	conv := startConversation(t, f)

	f.engine.Handle(ctx, conv, model.TextInput("English"))
	assert.Equal(t, model.StateAction, conv.State)

	effects := f.engine.Handle(ctx, conv, model.TextInput("mystery button"))
	assert.Equal(t, model.StateAction, conv.State)
	assert.Contains(t, allText(effects), "Unknown action")

	f.engine.Handle(ctx, conv, model.TextInput("Suggest a place for an urn"))
	assert.Equal(t, model.StateDescription, conv.State)
	assert.Equal(t, "report_place_for_urn", conv.Report.Action)
}

func TestLanguagePreferenceSkipsPrompt(t *testing.T) {
	f := newFixture(t, Config{})
	f.prefs.languages = map[string]string{"narek": "ru"}

	conv := startConversation(t, f)
	assert.Equal(t, model.StateDescription, conv.State)
	assert.Equal(t, "ru", conv.Report.Language)
}

func TestMediaRequiredGate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{MediaRequired: true})
	conv := startConversation(t, f)
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	f.engine.Handle(ctx, conv, model.TextInput("dirty place"))
	require.Equal(t, model.StateMedia, conv.State)

	effects := f.engine.Handle(ctx, conv, model.TextInput("Done"))
	assert.Equal(t, model.StateMedia, conv.State, "must not advance without media")
	assert.Contains(t, allText(effects), "at least one photo")

	f.engine.Handle(ctx, conv, model.PhotoInput([]byte("img"), 100, 100))
	f.engine.Handle(ctx, conv, model.TextInput("Done"))
	assert.Equal(t, model.StateLocation, conv.State)
}

func TestMediaCommentsAreKept(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	f.engine.Handle(ctx, conv, model.TextInput("dirty place"))

	f.engine.Handle(ctx, conv, model.TextInput("near the red fence"))
	f.engine.Handle(ctx, conv, model.TextInput("behind the school"))
	assert.Equal(t, model.StateMedia, conv.State)
	assert.Equal(t, []string{"near the red fence", "behind the school"}, conv.Report.Comments)
	assert.Empty(t, conv.Report.Media)
}

func TestMediaRelayFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	f.engine.Handle(ctx, conv, model.TextInput("dirty place"))

	f.relay.failWith = media.ErrUpload
	effects := f.engine.Handle(ctx, conv, model.PhotoInput([]byte("img"), 100, 100))
	assert.Equal(t, model.StateMedia, conv.State)
	assert.Empty(t, conv.Report.Media, "nothing appended on failed relay")
	assert.Contains(t, allText(effects), "Could not process that.")
}

func TestLocationTextVariants(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		check   func(t *testing.T, loc model.Location)
		invalid bool
	}{
		{
			name: "gps pair",
			text: "40.1,44.5",
			check: func(t *testing.T, loc model.Location) {
				require.NotNil(t, loc.Coordinates)
				assert.Equal(t, 40.1, loc.Coordinates.Lat)
				assert.Equal(t, 44.5, loc.Coordinates.Lon)
			},
		},
		{
			name: "google maps link",
			text: "https://maps.goo.gl/abc123",
			check: func(t *testing.T, loc model.Location) {
				require.NotNil(t, loc.Link)
				assert.Equal(t, model.ProviderGoogle, loc.Link.Provider)
			},
		},
		{
			name: "yandex maps link",
			text: "https://yandex.ru/maps/xyz",
			check: func(t *testing.T, loc model.Location) {
				require.NotNil(t, loc.Link)
				assert.Equal(t, model.ProviderYandex, loc.Link.Provider)
			},
		},
		{name: "not a location", text: "not a location", invalid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Config{})
			conv := startConversation(t, f)
			f.engine.Handle(ctx, conv, model.TextInput("English"))
			f.engine.Handle(ctx, conv, model.TextInput("dirty place"))
			f.engine.Handle(ctx, conv, model.TextInput("Done"))
			require.Equal(t, model.StateLocation, conv.State)

			effects := f.engine.Handle(ctx, conv, model.TextInput(tt.text))
			if tt.invalid {
				assert.Equal(t, model.StateLocation, conv.State)
				assert.Contains(t, allText(effects), "Could not understand the location.")
				assert.Empty(t, f.store.created)
				return
			}

			assert.Equal(t, model.StateDone, conv.State)
			require.Len(t, f.store.created, 1)
			tt.check(t, f.store.created[0].Location)
		})
	}
}

func TestNativeLocationFinalizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	f.engine.Handle(ctx, conv, model.TextInput("dirty place"))
	f.engine.Handle(ctx, conv, model.TextInput("Done"))

	f.engine.Handle(ctx, conv, model.LocationInput(40.194554, 44.509529))
	assert.Equal(t, model.StateDone, conv.State)
	require.Len(t, f.store.created, 1)
	require.NotNil(t, f.store.created[0].Location.Coordinates)
	assert.Equal(t, 40.194554, f.store.created[0].Location.Coordinates.Lat)
}

func TestLocationPhotoFinalizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	f.engine.Handle(ctx, conv, model.TextInput("dirty place"))
	f.engine.Handle(ctx, conv, model.TextInput("Done"))

	f.engine.Handle(ctx, conv, model.PhotoInput([]byte("map photo"), 800, 600))
	assert.Equal(t, model.StateDone, conv.State)
	require.Len(t, f.store.created, 1)
	assert.NotEmpty(t, f.store.created[0].Location.PhotoURL)

	require.Len(t, f.relay.uploads, 1)
	assert.Equal(t, media.PrefixLocationPhoto, f.relay.uploads[0].Prefix)
}

func TestLocationPhotoRelayFailureRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	f.engine.Handle(ctx, conv, model.TextInput("dirty place"))
	f.engine.Handle(ctx, conv, model.TextInput("Done"))

	f.relay.failWith = media.ErrUpload
	effects := f.engine.Handle(ctx, conv, model.PhotoInput([]byte("map photo"), 800, 600))
	assert.Equal(t, model.StateLocation, conv.State)
	assert.Contains(t, allText(effects), "Could not understand the location.")
	assert.Empty(t, f.store.created)
}

func TestCancelDiscardsWithoutPersisting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	f.engine.Handle(ctx, conv, model.TextInput("dirty place"))
	f.engine.Handle(ctx, conv, model.PhotoInput([]byte("one"), 1, 1))
	f.engine.Handle(ctx, conv, model.PhotoInput([]byte("two"), 1, 1))
	require.Len(t, conv.Report.Media, 2)

	effects := f.engine.Handle(ctx, conv, model.CancelInput())
	assert.Equal(t, model.StateDone, conv.State)
	assert.Nil(t, conv.Report)
	assert.Empty(t, f.store.created, "cancel must not persist")
	assert.Contains(t, allText(effects), "Cancelled.")
	assert.True(t, effects[0].RemoveKeyboard)
}

func TestResetForgetsPreference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.prefs.languages = map[string]string{"narek": "en"}
	conv := startConversation(t, f)

	effects := f.engine.Handle(ctx, conv, model.ResetInput())
	assert.Equal(t, model.StateDone, conv.State)
	assert.Equal(t, []string{"narek"}, f.prefs.forgotten)
	assert.Contains(t, allText(effects), "Preferences reset.")
}

func TestFinalizeFailureSurfacesTechnicalDetail(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.store.failWith = errors.New("database is sealed")
	conv := startConversation(t, f)
	f.engine.Handle(ctx, conv, model.TextInput("English"))
	f.engine.Handle(ctx, conv, model.TextInput("dirty place"))
	f.engine.Handle(ctx, conv, model.TextInput("Done"))

	effects := f.engine.Handle(ctx, conv, model.TextInput("40.1,44.5"))
	assert.Equal(t, model.StateDone, conv.State)
	assert.Nil(t, conv.Report, "scratch is discarded even on failure")
	text := allText(effects)
	assert.Contains(t, text, "Something went wrong")
	assert.Contains(t, text, "database is sealed")
}

func TestUploadNotice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)

	effects := f.engine.UploadNotice(conv)
	require.Len(t, effects, 1)
	assert.Equal(t, "Uploading, please wait...", effects[0].Text)

	// In the conversation's own language once one is chosen.
	f.engine.Handle(ctx, conv, model.TextInput("Русский"))
	effects = f.engine.UploadNotice(conv)
	require.Len(t, effects, 1)
	assert.Equal(t, "Загружаем, подождите...", effects[0].Text)

	// No active report, nothing to announce.
	f.engine.Handle(ctx, conv, model.CancelInput())
	assert.Empty(t, f.engine.UploadNotice(conv))
}

func TestBusyNotice(t *testing.T) {
	f := newFixture(t, Config{})

	effects := f.engine.BusyNotice()
	require.Len(t, effects, 1)
	assert.Equal(t, "One moment, still processing...", effects[0].Text)
}

func TestLanguageConfirmationStoresPreference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	conv := startConversation(t, f)

	f.engine.Handle(ctx, conv, model.TextInput("English"))
	assert.Equal(t, "en", f.prefs.languages["narek"])
}
