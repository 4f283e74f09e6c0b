package agent

import (
	"context"

	"github.com/marketmind/marketmind/pkg/model"
	"github.com/marketmind/marketmind/pkg/utils/logging"
)

// PersistMemory indexes one message into the vector store for long-term
// recall. It is fire-and-forget: failures are logged and swallowed so a
// broken store never interrupts the chat flow.
func (a *Agent) PersistMemory(ctx context.Context, chatID model.ChatID, role, content string) {
	if a.memory == nil {
		return
	}

	rec := model.MemoryRecord{
		Text:   content,
		ChatID: chatID,
		Role:   role,
	}
	if err := a.memory.Upsert(ctx, rec); err != nil {
		logging.From(ctx).Warn("failed to persist memory",
			"chat_id", chatID,
			"role", role,
			"error", err,
		)
	}
}
