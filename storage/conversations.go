package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"glint/conversation"
)

const (
	conversationsKey = "conversations"
	defaultsKey      = "default_settings"
	lastActiveKey    = "last_active_conversation"
	backupKeyPrefix  = "conversations_backup_"

	backupTimeFormat = "20060102T150405.000000000"
)

// ConversationStore persists the conversation list as one JSON blob, plus
// default settings and the last active conversation id. Decode failures
// never lose data: the corrupt blob is kept under a timestamped backup key.
type ConversationStore struct {
	store Store
	log   zerolog.Logger
}

func NewConversationStore(store Store, log zerolog.Logger) *ConversationStore {
	return &ConversationStore{store: store, log: log}
}

// Load reads the persisted conversation list. A missing key yields an
// empty list. A corrupt blob is backed up, the live list reset, and a
// best-effort recovery attempted against the just-made backup; if that
// also fails the empty list stands.
func (cs *ConversationStore) Load() ([]*conversation.Conversation, error) {
	raw, ok, err := cs.store.Get(conversationsKey)
	if err != nil {
		return nil, errors.Wrap(err, "loading conversations")
	}
	if !ok {
		return []*conversation.Conversation{}, nil
	}

	convs, err := decodeConversations(raw)
	if err == nil {
		return convs, nil
	}

	backupKey := backupKeyPrefix + time.Now().UTC().Format(backupTimeFormat)
	cs.log.Warn().Err(err).Str("backup_key", backupKey).
		Msg("conversation list is corrupt, backing up and resetting")

	if berr := cs.store.Set(backupKey, raw); berr != nil {
		cs.log.Error().Err(berr).Msg("failed to write corruption backup")
	}
	if rerr := cs.store.Set(conversationsKey, []byte("[]")); rerr != nil {
		cs.log.Error().Err(rerr).Msg("failed to reset conversation list")
	}

	if recovered, rok, _ := cs.recoverFromKey(backupKey); rok {
		return recovered, nil
	}
	return []*conversation.Conversation{}, nil
}

// Save overwrites the full persisted list.
func (cs *ConversationStore) Save(convs []*conversation.Conversation) error {
	data, err := json.Marshal(convs)
	if err != nil {
		return errors.Wrap(err, "encoding conversations")
	}
	return errors.Wrap(cs.store.Set(conversationsKey, data), "saving conversations")
}

// Recover scans every backup key and restores the newest decodable one as
// the live list. Reports whether anything was restored.
func (cs *ConversationStore) Recover() ([]*conversation.Conversation, bool, error) {
	keys, err := cs.store.Keys()
	if err != nil {
		return nil, false, errors.Wrap(err, "listing backup keys")
	}

	var backups []string
	for _, k := range keys {
		if strings.HasPrefix(k, backupKeyPrefix) {
			backups = append(backups, k)
		}
	}
	// Key suffix is a fixed-width UTC timestamp, so newest sorts last.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	for _, key := range backups {
		convs, ok, _ := cs.recoverFromKey(key)
		if !ok {
			continue
		}
		if err := cs.Save(convs); err != nil {
			return nil, false, err
		}
		cs.log.Info().Str("backup_key", key).Int("conversations", len(convs)).
			Msg("recovered conversation list from backup")
		return convs, true, nil
	}
	return nil, false, nil
}

func (cs *ConversationStore) recoverFromKey(key string) ([]*conversation.Conversation, bool, error) {
	raw, ok, err := cs.store.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	convs, err := decodeConversations(raw)
	if err != nil {
		return nil, false, err
	}
	return convs, true, nil
}

// Defaults reads the stored default settings for new drafts.
func (cs *ConversationStore) Defaults() (conversation.Settings, bool, error) {
	raw, ok, err := cs.store.Get(defaultsKey)
	if err != nil || !ok {
		return conversation.Settings{}, false, errors.Wrap(err, "loading default settings")
	}
	var s conversation.Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return conversation.Settings{}, false, nil
	}
	return s, true, nil
}

func (cs *ConversationStore) SaveDefaults(s conversation.Settings) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encoding default settings")
	}
	return errors.Wrap(cs.store.Set(defaultsKey, data), "saving default settings")
}

// LastActive reads the persisted last active conversation id.
func (cs *ConversationStore) LastActive() (uuid.UUID, bool, error) {
	raw, ok, err := cs.store.Get(lastActiveKey)
	if err != nil || !ok {
		return uuid.Nil, false, errors.Wrap(err, "loading last active id")
	}
	id, err := uuid.Parse(strings.TrimSpace(string(raw)))
	if err != nil {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (cs *ConversationStore) SaveLastActive(id uuid.UUID) error {
	return errors.Wrap(cs.store.Set(lastActiveKey, []byte(id.String())), "saving last active id")
}

// ExportToJSON writes one conversation to a standalone indented JSON file.
func (cs *ConversationStore) ExportToJSON(conv *conversation.Conversation, exportPath string) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding conversation")
	}
	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return errors.Wrap(err, "creating export directory")
	}
	// Conversation contents are private, keep the file user-only.
	return errors.Wrap(os.WriteFile(exportPath, data, 0600), "writing export file")
}

// ImportFromJSON reads a conversation exported by ExportToJSON. The
// imported conversation gets a fresh id so it can live alongside the
// original.
func (cs *ConversationStore) ImportFromJSON(importPath string) (*conversation.Conversation, error) {
	data, err := os.ReadFile(importPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading import file")
	}
	var conv conversation.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, errors.Wrap(err, "decoding import file")
	}
	conv.ID = uuid.New()
	return &conv, nil
}

// ExportPath builds a default export path under the user's Downloads
// directory from a conversation title.
func ExportPath(title string) string {
	homeDir, _ := os.UserHomeDir()
	timestamp := time.Now().Format("20060102-150405")
	return filepath.Join(homeDir, "Downloads", "glint-"+sanitizeFilename(title)+"-"+timestamp+".json")
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-", " ", "-",
		"\n", "-", "\r", "-",
	)
	name = strings.Trim(replacer.Replace(name), "-.")
	if runes := []rune(name); len(runes) > 50 {
		name = string(runes[:50])
	}
	if name == "" {
		name = "conversation"
	}
	return name
}

func decodeConversations(raw []byte) ([]*conversation.Conversation, error) {
	var convs []*conversation.Conversation
	if err := json.Unmarshal(raw, &convs); err != nil {
		return nil, err
	}
	if convs == nil {
		convs = []*conversation.Conversation{}
	}
	return convs, nil
}
