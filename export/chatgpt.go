package export

import (
	"encoding/json"
	"fmt"
	"iter"
	"sort"

	"github.com/chatvault/chatvault/core"
)

// chatgptParser handles OpenAI ChatGPT export payloads. The export format
// has drifted over time: conversations carry either a flat message list or a
// graph-shaped "mapping", and message content comes in several shapes.
type chatgptParser struct{}

func (p *chatgptParser) Provider() core.Provider {
	return core.ProviderChatGPT
}

type chatgptConversation struct {
	Id             string                        `json:"id"`
	ConversationId string                        `json:"conversation_id"`
	Title          string                        `json:"title"`
	GizmoId        string                        `json:"gizmo_id"`
	Messages       []json.RawMessage             `json:"messages"`
	Mapping        map[string]chatgptMappingNode `json:"mapping"`
}

type chatgptMappingNode struct {
	Message json.RawMessage `json:"message"`
}

type chatgptMessage struct {
	Id     string `json:"id"`
	Author *struct {
		Role string `json:"role"`
	} `json:"author"`
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	CreateTime json.RawMessage `json:"create_time"`
	ModelSlug  string          `json:"model_slug"`
}

func (p *chatgptParser) Parse(payload []byte, report *Report) (iter.Seq[*Conversation], error) {
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

func (p *chatgptParser) parseConversation(raw json.RawMessage) (*Conversation, error) {
	var cc chatgptConversation
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, err
	}

	externalID := cc.Id
	if externalID == "" {
		externalID = cc.ConversationId
	}

	title := cc.Title
	if title == "" {
		title = "Untitled"
	}

	conv := &Conversation{
		ExternalId: externalID,
		Title:      title,
	}
	if cc.GizmoId != "" {
		conv.Metadata = map[string]string{"gizmo_id": cc.GizmoId}
	}

	rawMessages := cc.Messages
	if len(rawMessages) == 0 && len(cc.Mapping) > 0 {
		rawMessages = messagesFromMapping(cc.Mapping)
	}

	for _, rawMsg := range rawMessages {
		msg, ok := p.parseMessage(rawMsg)
		if ok {
			conv.Messages = append(conv.Messages, msg)
		}
	}
	return conv, nil
}

// parseMessage normalizes one ChatGPT message. Messages without textual
// content (tool scaffolding, empty system nodes) are dropped.
func (p *chatgptParser) parseMessage(raw json.RawMessage) (Message, bool) {
	var cm chatgptMessage
	if err := json.Unmarshal(raw, &cm); err != nil {
		return Message{}, false
	}

	roleName := cm.Role
	if cm.Author != nil && cm.Author.Role != "" {
		roleName = cm.Author.Role
	}
	role, err := core.ParseRole(roleName)
	if err != nil {
		return Message{}, false
	}

	contents := textFromContent(cm.Content)
	if contents == "" {
		return Message{}, false
	}

	msg := Message{
		ExternalId: cm.Id,
		Role:       role,
		Contents:   contents,
		WordCount:  core.CountWords(contents),
		Timestamp:  flexibleTime(cm.CreateTime),
	}
	if cm.ModelSlug != "" {
		msg.Metadata = map[string]string{"model_slug": cm.ModelSlug}
	}
	return msg, true
}

// messagesFromMapping flattens the graph-shaped mapping into a message list.
// Nodes are ordered by create_time then id so the result is deterministic
// regardless of map iteration order.
func messagesFromMapping(mapping map[string]chatgptMappingNode) []json.RawMessage {
	type node struct {
		raw json.RawMessage
		ts  int64
		id  string
	}
	nodes := make([]node, 0, len(mapping))
	for _, mn := range mapping {
		if len(mn.Message) == 0 || string(mn.Message) == "null" {
			continue
		}
		var cm chatgptMessage
		if err := json.Unmarshal(mn.Message, &cm); err != nil {
			continue
		}
		nodes = append(nodes, node{
			raw: mn.Message,
			ts:  flexibleTime(cm.CreateTime).UnixMicro(),
			id:  cm.Id,
		})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].ts != nodes[j].ts {
			return nodes[i].ts < nodes[j].ts
		}
		return nodes[i].id < nodes[j].id
	})

	raws := make([]json.RawMessage, len(nodes))
	for i, n := range nodes {
		raws[i] = n.raw
	}
	return raws
}
