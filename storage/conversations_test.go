package storage

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glint/conversation"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	return NewConversationStore(NewMemStore(), zerolog.Nop())
}

func sampleConversation(title string) *conversation.Conversation {
	c := conversation.New(title, conversation.Settings{
		Instructions: "sys",
		Temperature:  0.7,
		ToolsEnabled: true,
	})
	c.Messages = append(c.Messages, conversation.NewUserMessage("hello", time.Now().UTC()))
	return c
}

func TestLoadEmptyStore(t *testing.T) {
	cs := newTestStore(t)
	convs, err := cs.Load()
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cs := newTestStore(t)
	want := []*conversation.Conversation{sampleConversation("a"), sampleConversation("b")}
	require.NoError(t, cs.Save(want))

	got, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want[0].ID, got[0].ID)
	assert.Equal(t, "a", got[0].Title)
	assert.Equal(t, want[0].Messages[0].Content, got[0].Messages[0].Content)
}

func TestLoadCorruptBlobBacksUpAndResets(t *testing.T) {
	mem := NewMemStore()
	cs := NewConversationStore(mem, zerolog.Nop())
	require.NoError(t, mem.Set("conversations", []byte("{definitely not json")))

	convs, err := cs.Load()
	require.NoError(t, err)
	assert.Empty(t, convs)

	keys, err := mem.Keys()
	require.NoError(t, err)
	var backups []string
	for _, k := range keys {
		if strings.HasPrefix(k, "conversations_backup_") {
			backups = append(backups, k)
		}
	}
	require.Len(t, backups, 1, "corrupt blob must be backed up")

	raw, ok, err := mem.Get(backups[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "{definitely not json", string(raw))

	// Live key reset to an empty list.
	raw, ok, err = mem.Get("conversations")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, "[]", string(raw))
}

func TestRecoverFromNewestDecodableBackup(t *testing.T) {
	mem := NewMemStore()
	cs := NewConversationStore(mem, zerolog.Nop())

	good := []*conversation.Conversation{sampleConversation("recovered")}
	require.NoError(t, cs.Save(good))
	raw, _, err := mem.Get("conversations")
	require.NoError(t, err)

	// Older backup holds good data, newer one is corrupt; recovery walks
	// newest-first and lands on the decodable one.
	require.NoError(t, mem.Set("conversations_backup_20240101T000000.000000000", raw))
	require.NoError(t, mem.Set("conversations_backup_20250101T000000.000000000", []byte("garbage")))
	require.NoError(t, mem.Set("conversations", []byte("[]")))

	convs, ok, err := cs.Recover()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, convs, 1)
	assert.Equal(t, "recovered", convs[0].Title)

	// The recovered list becomes the live one.
	live, err := cs.Load()
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "recovered", live[0].Title)
}

func TestRecoverWithNoBackups(t *testing.T) {
	cs := newTestStore(t)
	_, ok, err := cs.Recover()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDefaultsRoundTrip(t *testing.T) {
	cs := newTestStore(t)

	_, ok, err := cs.Defaults()
	require.NoError(t, err)
	assert.False(t, ok)

	want := conversation.Settings{Instructions: "short answers", Temperature: 0.4, ToolsEnabled: false}
	require.NoError(t, cs.SaveDefaults(want))

	got, ok, err := cs.Defaults()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLastActiveRoundTrip(t *testing.T) {
	cs := newTestStore(t)

	_, ok, err := cs.LastActive()
	require.NoError(t, err)
	assert.False(t, ok)

	id := uuid.New()
	require.NoError(t, cs.SaveLastActive(id))

	got, ok, err := cs.LastActive()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestExportImportRoundTrip(t *testing.T) {
	cs := newTestStore(t)
	conv := sampleConversation("export me")
	path := filepath.Join(t.TempDir(), "export.json")

	require.NoError(t, cs.ExportToJSON(conv, path))

	back, err := cs.ImportFromJSON(path)
	require.NoError(t, err)
	assert.NotEqual(t, conv.ID, back.ID, "import assigns a fresh id")
	assert.Equal(t, conv.Title, back.Title)
	require.Len(t, back.Messages, 1)
	assert.Equal(t, "hello", back.Messages[0].Content)
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "report-final", sanitizeFilename("report:final"))
	assert.Equal(t, "a-b", sanitizeFilename("a/b"))
	assert.Equal(t, "conversation", sanitizeFilename("///"))
	long := sanitizeFilename(strings.Repeat("x", 80))
	assert.Len(t, long, 50)

	// Truncation counts runes, not bytes.
	wide := sanitizeFilename(strings.Repeat("é", 60))
	assert.Equal(t, strings.Repeat("é", 50), wide)
	assert.True(t, utf8.ValidString(wide))
}
