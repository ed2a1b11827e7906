package export

import (
	"encoding/json"
	"fmt"
	"iter"

	"github.com/chatvault/chatvault/core"
)

// claudeParser handles Anthropic Claude export payloads.
type claudeParser struct{}

func (p *claudeParser) Provider() core.Provider {
	return core.ProviderClaude
}

type claudeConversation struct {
	Uuid         string          `json:"uuid"`
	Name         string          `json:"name"`
	Title        string          `json:"title"`
	ChatMessages []claudeMessage `json:"chat_messages"`
	Messages     []claudeMessage `json:"messages"`
	Project      *struct {
		Uuid string `json:"uuid"`
	} `json:"project"`
}

type claudeMessage struct {
	Uuid      string          `json:"uuid"`
	Sender    string          `json:"sender"`
	Role      string          `json:"role"`
	Text      string          `json:"text"`
	Content   json.RawMessage `json:"content"`
	CreatedAt json.RawMessage `json:"created_at"`
}

func (p *claudeParser) Parse(payload []byte, report *Report) (iter.Seq[*Conversation], error) {
	rawConversations, err := topLevelConversations(payload)
	if err != nil {
		return nil, err
	}

	return func(yield func(*Conversation) bool) {
		for i, raw := range rawConversations {
			section := fmt.Sprintf("conversation %d", i)
			conv, err := p.parseConversation(raw)
			if err != nil {
				report.Warn(section, "%v", err)
				continue
			}
			if !yield(conv) {
				return
			}
		}
	}, nil
}

func (p *claudeParser) parseConversation(raw json.RawMessage) (*Conversation, error) {
	var cc claudeConversation
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, err
	}

	title := cc.Name
	if title == "" {
		title = cc.Title
	}
	if title == "" {
		title = "Untitled"
	}

	conv := &Conversation{
		ExternalId: cc.Uuid,
		Title:      title,
	}
	if cc.Project != nil && cc.Project.Uuid != "" {
		conv.Metadata = map[string]string{"project_uuid": cc.Project.Uuid}
	}

	messages := cc.ChatMessages
	if len(messages) == 0 {
		messages = cc.Messages
	}
	for _, cm := range messages {
		msg, ok := p.parseMessage(cm)
		if ok {
			conv.Messages = append(conv.Messages, msg)
		}
	}
	return conv, nil
}

func (p *claudeParser) parseMessage(cm claudeMessage) (Message, bool) {
	roleName := cm.Sender
	if roleName == "" {
		roleName = cm.Role
	}
	role, err := core.ParseRole(roleName)
	if err != nil {
		return Message{}, false
	}

	contents := cm.Text
	if contents == "" {
		contents = textFromContent(cm.Content)
	}
	if contents == "" {
		return Message{}, false
	}

	return Message{
		ExternalId: cm.Uuid,
		Role:       role,
		Contents:   contents,
		WordCount:  core.CountWords(contents),
		Timestamp:  flexibleTime(cm.CreatedAt),
	}, true
}
