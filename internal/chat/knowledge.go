package chat

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"botforge/pkg/domain"
)

// TextFetcher reads a stored training file as plain text.
type TextFetcher interface {
	FetchText(ctx context.Context, key string) (string, error)
}

// KnowledgeLoader assembles a bot's knowledge blob from its training files.
// Concurrent loads for the same bot are collapsed into a single fetch pass.
type KnowledgeLoader struct {
	files TextFetcher
	group singleflight.Group
}

// NewKnowledgeLoader builds a loader over the given file store.
func NewKnowledgeLoader(files TextFetcher) *KnowledgeLoader {
	return &KnowledgeLoader{files: files}
}

// Load fetches every training file of the bot and concatenates the contents
// in list order, each followed by a blank line. Files that fail to load are
// skipped with a warning so one bad file never blocks the chat. A bot with no
// training files yields the empty string without any fetch.
func (l *KnowledgeLoader) Load(ctx context.Context, bot domain.Bot) string {
	if len(bot.TrainingData) == 0 {
		return ""
	}
	v, _, _ := l.group.Do(loadKey(bot), func() (any, error) {
		return l.load(ctx, bot), nil
	})
	return v.(string)
}

func (l *KnowledgeLoader) load(ctx context.Context, bot domain.Bot) string {
	var b strings.Builder
	for _, key := range bot.TrainingData {
		content, err := l.files.FetchText(ctx, key)
		if err != nil {
			slog.Warn("skipping unreadable training file",
				"bot_id", bot.ID, "key", key, "error", err)
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	return b.String()
}

// loadKey includes the file count so a bot whose training list just grew is
// not served a result computed from the shorter list.
func loadKey(bot domain.Bot) string {
	return bot.ID + ":" + strconv.Itoa(len(bot.TrainingData))
}
