package conversations

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	errx "github.com/SolveWise/server/internal/core/error"
	"github.com/SolveWise/server/internal/solver/model"
	logx "github.com/SolveWise/server/pkg/logger"
)

const (
	defaultMaxTurns = 6

	previousHeader  = "[Previous conversation]"
	currentQuestion = "[Current question]:"

	imageQuestion = "(question in the attached image)"
)

// MessagesManager turns stored history into prompt context and records new
// turns. A nil repository disables history.
type MessagesManager struct {
	historyRepo model.HistoryRepository
	maxTurns    int
	now         func() time.Time
}

func NewMessagesManager(historyRepo model.HistoryRepository, config model.HistoryConfig) *MessagesManager {
	maxTurns := config.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	return &MessagesManager{
		historyRepo: historyRepo,
		maxTurns:    maxTurns,
		now:         time.Now,
	}
}

// Turn is one answered question to be persisted under Owner.
type Turn struct {
	Owner          string
	ConversationID string
	Query          string
	HasImage       bool
	PreviewImage   string
	Answer         *model.AnswerResult
}

// =========== Solve ===========

// BuildUserPrompt prepends the recent turns of the conversation to query.
// A conversation that does not exist yet simply has no earlier turns.
func (m *MessagesManager) BuildUserPrompt(ctx context.Context, owner, conversationID, query string, hasImage bool) string {
	current := strings.TrimSpace(query)
	if current == "" && hasImage {
		current = imageQuestion
	}

	item := m.load(ctx, owner, conversationID)
	if item == nil || len(item.Messages) == 0 {
		return current
	}

	var sb strings.Builder
	sb.WriteString(previousHeader)
	sb.WriteString("\n")
	for _, msg := range trimTail(item.Messages, m.maxTurns) {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			sb.WriteString("User: " + msg.Content + "\n")
		case schema.Assistant:
			sb.WriteString("Assistant: " + msg.Content + "\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(currentQuestion + " " + current)
	return sb.String()
}

func (m *MessagesManager) load(ctx context.Context, owner, conversationID string) *model.HistoryItem {
	if m.historyRepo == nil || conversationID == "" {
		return nil
	}
	item, err := m.historyRepo.GetItem(ctx, owner, conversationID)
	if err != nil {
		if !errors.Is(err, errx.ErrNotFound) {
			logx.Warn().Err(err).Str("conversation_id", conversationID).Msg("failed to load conversation, answering without history")
		}
		return nil
	}
	return item
}

// SaveTurn appends the question and answer to the conversation, creating the
// history item on first use.
func (m *MessagesManager) SaveTurn(ctx context.Context, turn Turn) error {
	if m.historyRepo == nil || turn.Answer == nil {
		return nil
	}

	question := strings.TrimSpace(turn.Query)
	if question == "" && turn.HasImage {
		question = imageQuestion
	}
	userMsg := schema.UserMessage(question)
	assistantMsg := schema.AssistantMessage(turn.Answer.Explanation, nil)
	if turn.Answer.ChartCode != "" {
		assistantMsg.Extra = map[string]any{model.ExtraChartCode: turn.Answer.ChartCode}
	}

	item, err := m.historyRepo.GetItem(ctx, turn.Owner, turn.ConversationID)
	switch {
	case errors.Is(err, errx.ErrNotFound):
		historyType := model.HistoryText
		if turn.HasImage {
			historyType = model.HistoryImage
		}
		return m.historyRepo.AddItem(ctx, turn.Owner, &model.HistoryItem{
			ID:           turn.ConversationID,
			Type:         historyType,
			Question:     question,
			Answer:       turn.Answer.Explanation,
			ChartCode:    turn.Answer.ChartCode,
			PreviewImage: turn.PreviewImage,
			Timestamp:    m.now().UnixMilli(),
			Messages:     []*schema.Message{userMsg, assistantMsg},
		})
	case err != nil:
		return err
	}

	item.Messages = append(item.Messages, userMsg, assistantMsg)
	if turn.Answer.ChartCode != "" {
		item.ChartCode = turn.Answer.ChartCode
	}
	return m.historyRepo.UpdateItem(ctx, turn.Owner, item)
}

// =========== Chart ===========

// ChartContext loads the conversation and appends the chart instruction.
func (m *MessagesManager) ChartContext(ctx context.Context, owner, conversationID, instruction string) (*model.HistoryItem, []*schema.Message, error) {
	if m.historyRepo == nil {
		return nil, nil, errx.NotFound("conversation " + conversationID)
	}
	item, err := m.historyRepo.GetItem(ctx, owner, conversationID)
	if err != nil {
		return nil, nil, err
	}

	recent := trimTail(item.Messages, m.maxTurns)
	messages := make([]*schema.Message, 0, len(recent)+1)
	for _, msg := range recent {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case schema.User:
			messages = append(messages, schema.UserMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, schema.AssistantMessage(msg.Content, nil))
		}
	}
	messages = append(messages, schema.UserMessage(instruction))
	return item, messages, nil
}

// SaveChart records the chart turn and the item's latest chart code.
func (m *MessagesManager) SaveChart(ctx context.Context, owner string, item *model.HistoryItem, raw string, chartCode string) error {
	if m.historyRepo == nil || item == nil {
		return nil
	}
	assistantMsg := schema.AssistantMessage(raw, nil)
	if chartCode != "" {
		assistantMsg.Extra = map[string]any{model.ExtraChartCode: chartCode}
		item.ChartCode = chartCode
	}
	item.Messages = append(item.Messages, assistantMsg)
	return m.historyRepo.UpdateItem(ctx, owner, item)
}

// ====================== Helper function ======================
func trimTail(messages []*schema.Message, maxTurns int) []*schema.Message {
	if len(messages) <= maxTurns {
		return messages
	}
	return messages[len(messages)-maxTurns:]
}
