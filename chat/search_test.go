package chat

import (
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"glint/provider/testutil"
)

func TestSearchConversations(t *testing.T) {
	m := newTestManager(t, testutil.NewMockProvider())
	m.NewDraft()
	send(t, m, "grocery list for the week")
	m.NewDraft()
	send(t, m, "golang error handling")

	results := m.SearchConversations("golang")
	require.Len(t, results, 1)
	assert.Equal(t, "golang error handling", results[0].Title)

	all := m.SearchConversations("  ")
	assert.Len(t, all, 2, "empty query returns everything")

	none := m.SearchConversations("quantum")
	assert.Empty(t, none)
}

func TestSearchMessages(t *testing.T) {
	m := newTestManager(t, testutil.NewMockProvider())
	m.NewDraft()
	send(t, m, "tell me about Lisbon")
	m.NewDraft()
	send(t, m, "tell me about Porto")

	matches := m.SearchMessages("lisbon")
	require.Len(t, matches, 2, "user message and the echoed reply")
	for _, match := range matches {
		assert.Contains(t, match.Preview, "Lisbon")
	}

	assert.Empty(t, m.SearchMessages(""))
	assert.Empty(t, m.SearchMessages("madrid"))
}

func TestSearchPreviewTruncatesOnRuneBoundary(t *testing.T) {
	m := newTestManager(t, testutil.NewMockProvider())
	m.NewDraft()
	send(t, m, strings.Repeat("é", 120))

	matches := m.SearchMessages("é")
	require.NotEmpty(t, matches)
	for _, match := range matches {
		assert.True(t, utf8.ValidString(match.Preview))
	}
	assert.Equal(t, strings.Repeat("é", previewLength)+"...", matches[0].Preview)
}

func TestExportImportConversation(t *testing.T) {
	m := newTestManager(t, testutil.NewMockProvider())
	m.NewDraft()
	send(t, m, "export material")

	original := m.Conversations()[0]
	path := filepath.Join(t.TempDir(), "conv.json")
	require.NoError(t, m.ExportConversation(original.ID, path))

	importedID, err := m.ImportConversation(path)
	require.NoError(t, err)

	convs := m.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, importedID, convs[0].ID, "import lands at the front")
	assert.NotEqual(t, original.ID, importedID)
	assert.Equal(t, original.Title, convs[0].Title)
}
