package planner

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/hearthai/hearth/internal/compaction"
	"github.com/hearthai/hearth/pkg/models"
)

// extractMemories is EXTRACT_MEMORIES: a best-effort classifier call
// over the inbound user message. Short messages and filler patterns
// are skipped without ever reaching the model; any model or engine
// failure is logged and swallowed, never surfaced to the caller.
func (p *Planner) extractMemories(ctx context.Context, userID, convID, content, sourceMsgID string) {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < minExtractableLength || isFiller(trimmed) {
		return
	}

	resp, err := p.llm.Complete(ctx, CompletionRequest{
		System:    extractionInstructions,
		Messages:  []ChatMessage{{Role: string(models.RoleUser), Content: trimmed}},
		MaxTokens: 256,
		JSONOnly:  true,
	})
	if err != nil {
		if p.log != nil {
			p.log.Error(ctx, "memory extraction call failed", "error", err)
		}
		return
	}

	var candidate extractedMemory
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(resp.Content)))
	if err := dec.Decode(&candidate); err != nil || !candidate.Worth {
		return
	}
	if strings.TrimSpace(candidate.Content) == "" {
		return
	}
	if !validMemoryKind(candidate.Kind) {
		candidate.Kind = models.MemoryKindFact
	}

	_, err = p.memories.Add(ctx, models.MemoryWrite{
		UserID:         userID,
		Kind:           candidate.Kind,
		Title:          candidate.Title,
		Content:        candidate.Content,
		Tags:           candidate.Tags,
		ConversationID: convID,
		SourceReferences: []models.SourceReference{{
			Type: models.SourceReferenceMessage, ID: sourceMsgID, Timestamp: time.Now(),
		}},
	})
	if err != nil && p.log != nil {
		p.log.Error(ctx, "memory extraction add failed", "error", err)
	}
}

type extractedMemory struct {
	Worth   bool             `json:"worth"`
	Kind    models.MemoryKind `json:"kind"`
	Title   string           `json:"title"`
	Content string           `json:"content"`
	Tags    []string         `json:"tags"`
}

func validMemoryKind(k models.MemoryKind) bool {
	switch k {
	case models.MemoryKindFact, models.MemoryKindPreference, models.MemoryKindSummary, models.MemoryKindEpisode:
		return true
	}
	return false
}

func isFiller(s string) bool {
	lower := strings.ToLower(s)
	for _, f := range fillerPatterns {
		if lower == f {
			return true
		}
	}
	return false
}

const extractionInstructions = `Decide whether the user's message contains a durable fact, stated preference, or noteworthy episode worth remembering for future conversations. Respond with exactly one JSON object:
{"worth": <bool>, "kind": "fact"|"preference"|"episode", "title": "<short title>", "content": "<the durable content>", "tags": ["..."]}
If nothing is worth remembering, respond {"worth": false}.`

// maybeCompact is MAYBE_COMPACT: a best-effort, background check that
// summarises the conversation's older messages into a Memory of kind
// summary once the conversation has grown past the configured
// threshold. The message log itself is never mutated or pruned — only
// a derived summary Memory is added, referencing the source messages.
func (p *Planner) maybeCompact(ctx context.Context, convID, userID string, recentCount int) {
	if recentCount < p.cfg.CompactionThreshold {
		return
	}

	all, err := p.messages.FindByConversation(ctx, convID, 0)
	if err != nil || len(all) < p.cfg.CompactionThreshold {
		return
	}
	older := all[:len(all)-p.cfg.HistoryWindow]
	if len(older) == 0 {
		return
	}

	compactMsgs := make([]*compaction.Message, 0, len(older))
	refs := make([]models.SourceReference, 0, len(older))
	for _, m := range older {
		compactMsgs = append(compactMsgs, &compaction.Message{
			ID: m.ID, Role: string(m.Role), Content: m.Content, Timestamp: m.CreatedAt.Unix(),
		})
		refs = append(refs, models.SourceReference{Type: models.SourceReferenceMessage, ID: m.ID, Timestamp: m.CreatedAt})
	}

	summary, err := compaction.SummarizeWithFallback(ctx, compactMsgs, &llmSummarizer{llm: p.llm}, compaction.DefaultSummarizationConfig())
	if err != nil {
		if p.log != nil {
			p.log.Error(ctx, "compaction summarisation failed", "error", err)
		}
		return
	}

	_, err = p.memories.Add(ctx, models.MemoryWrite{
		UserID: userID, Kind: models.MemoryKindSummary,
		Title:            "Conversation summary",
		Content:          summary,
		ConversationID:   convID,
		SourceReferences: refs,
		CompaktifiedFrom: messageIDs(older),
	})
	if err != nil && p.log != nil {
		p.log.Error(ctx, "compaction summary add failed", "error", err)
	}
}

func messageIDs(msgs []*models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// llmSummarizer adapts the planner's LLMClient to compaction.Summarizer.
type llmSummarizer struct {
	llm LLMClient
}

func (s *llmSummarizer) GenerateSummary(ctx context.Context, messages []*compaction.Message, config *compaction.SummarizationConfig) (string, error) {
	resp, err := s.llm.Complete(ctx, CompletionRequest{
		System:    "Summarise the following conversation history concisely, preserving durable facts and decisions.",
		Messages:  []ChatMessage{{Role: string(models.RoleUser), Content: compaction.FormatMessagesForSummary(messages)}},
		MaxTokens: config.ReserveTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
