// Copyright 2025 Chatvault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chatvault/chatvault/core"
	"github.com/chatvault/chatvault/export"
	"github.com/chatvault/chatvault/storage"
)

// ingestMaxRetries bounds per-conversation retries when concurrent jobs
// race on the same dedup key.
const ingestMaxRetries = 3

// ProcessUpload runs one ingestion job to completion: parse the payload,
// upsert each conversation group, keep the upload's counters live, and mark
// the job terminal. Per-record failures are collected into the error
// summary and never abort the rest of the file; only an unreadable payload
// fails the job outright.
func (p *Pipeline) ProcessUpload(ctx context.Context, upload *core.FileUpload, payload []byte) error {
	logger := p.logger.With("upload_id", upload.Id, "filename", upload.Filename)
	logger.Info("starting ingestion job", "size_bytes", len(payload))

	report := &export.Report{}
	payloads, err := export.NormalizePayload(payload, report)
	if err != nil {
		return p.failUpload(ctx, upload, err)
	}
	parser, err := export.ParserFor(upload.Provider)
	if err != nil {
		return p.failUpload(ctx, upload, err)
	}

	// Multi-file archives carry one conversation list per member. Each file
	// parses independently; one malformed member never sinks the rest.
	var failures []string
	parsed := 0
files:
	for _, pl := range payloads {
		name := pl.Name
		if name == "" {
			name = upload.Filename
		}

		seq, err := parser.Parse(pl.Data, report)
		if err != nil {
			logger.Warn("export file unreadable", "file", name, "err", err)
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		parsed++

		for group := range seq {
			if ctx.Err() != nil {
				failures = append(failures, fmt.Sprintf("job cancelled: %v", ctx.Err()))
				break files
			}

			if err := p.ingestConversation(ctx, upload, group); err != nil {
				logger.Warn("conversation ingest failed", "title", group.Title, "err", err)
				failures = append(failures, fmt.Sprintf("conversation %q: %v", group.Title, err))
				continue
			}

			upload.ProcessedConversations++
			upload.ProcessedMessages += len(group.Messages)
			// Persist counters so status lookups see live progress. A failed
			// counter write is not worth failing the job over.
			if err := p.stores.Uploads.UpdateUpload(ctx, upload); err != nil {
				logger.Warn("failed to persist upload progress", "err", err)
			}
		}
	}

	if parsed == 0 {
		return p.failUpload(ctx, upload, fmt.Errorf("no readable export data: %s", strings.Join(failures, "; ")))
	}

	for _, w := range report.Warnings {
		failures = append(failures, fmt.Sprintf("%s: %s", w.Section, w.Reason))
	}

	upload.Status = core.UploadCompleted
	upload.ErrorSummary = strings.Join(failures, "; ")
	upload.CompletedAt = time.Now().UTC()
	if err := p.stores.Uploads.UpdateUpload(ctx, upload); err != nil {
		logger.Error("failed to mark upload completed", "err", err)
		return err
	}

	logger.Info("ingestion job completed",
		"conversations", upload.ProcessedConversations,
		"messages", upload.ProcessedMessages,
		"failures", len(failures))
	return nil
}

// failUpload marks the job failed. Used only when the file as a whole is
// unreadable.
func (p *Pipeline) failUpload(ctx context.Context, upload *core.FileUpload, cause error) error {
	upload.Status = core.UploadFailed
	upload.ErrorSummary = cause.Error()
	upload.CompletedAt = time.Now().UTC()
	if err := p.stores.Uploads.UpdateUpload(ctx, upload); err != nil {
		p.logger.Error("failed to mark upload failed", "upload_id", upload.Id, "err", err)
	}
	return cause
}

// ingestConversation upserts one normalized conversation group. Write races
// with concurrent jobs on the same dedup key surface as conflicts and are
// resolved by re-reading and merging.
func (p *Pipeline) ingestConversation(ctx context.Context, upload *core.FileUpload, group *export.Conversation) error {
	var lastErr error
	for attempt := 0; attempt < ingestMaxRetries; attempt++ {
		err := p.ingestConversationOnce(ctx, upload, group)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %w", storage.ErrConflictRetryExhausted, lastErr)
}

func (p *Pipeline) ingestConversationOnce(ctx context.Context, upload *core.FileUpload, group *export.Conversation) error {
	convID, existing, err := p.resolveConversation(ctx, upload, group)
	if err != nil {
		return err
	}

	conv := mergeConversation(existing, group, upload, convID)
	if _, err := p.stores.Conversations.PutConversation(ctx, conv); err != nil {
		return err
	}

	messages := make([]*core.Message, 0, len(group.Messages))
	for _, m := range group.Messages {
		msg := &core.Message{
			UserId:         upload.UserId,
			ConversationId: convID,
			ExternalId:     m.ExternalId,
			Role:           m.Role,
			Contents:       m.Contents,
			WordCount:      m.WordCount,
			Timestamp:      m.Timestamp,
			Metadata:       m.Metadata,
		}
		if m.ExternalId != "" {
			msg.Id = core.MessageDedupID(convID, m.ExternalId)
		} else {
			msg.Id = core.MessageContentDedupID(convID, m.Role, m.Timestamp, m.Contents)
		}
		messages = append(messages, msg)
	}

	added, err := p.stores.Messages.AddMessages(ctx, messages...)
	if err != nil {
		return err
	}

	if _, err := p.stores.Conversations.RecomputeStats(ctx, convID); err != nil {
		return err
	}

	// Embedding work branches off the write path. Queue pressure or
	// cancellation leaves messages for the backfill pass.
	for _, msg := range added {
		if err := p.scheduler.Schedule(ctx, msg.Id, msg.Contents); err != nil {
			p.logger.Debug("embedding not scheduled",
				"message_id", uint64(msg.Id), "reason", err)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
		}
	}
	return nil
}

// resolveConversation determines the conversation identity for a group.
// Groups with a provider-native id use the (user, provider, external id)
// dedup key; groups without one fall back to a content-derived identity so
// re-ingesting the identical payload still converges.
func (p *Pipeline) resolveConversation(ctx context.Context, upload *core.FileUpload, group *export.Conversation) (core.ID, *core.Conversation, error) {
	if group.ExternalId != "" {
		existing, err := p.stores.Conversations.FindConversation(ctx, upload.UserId, upload.Provider, group.ExternalId)
		if err != nil {
			return 0, nil, err
		}
		return core.ConversationDedupID(upload.UserId, upload.Provider, group.ExternalId), existing, nil
	}

	id := contentConversationID(upload.UserId, upload.Provider, group)
	existing, err := p.stores.Conversations.GetConversation(ctx, id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return 0, nil, err
	}
	return id, existing, nil
}

// contentConversationID derives a deterministic identity from the group's
// content for exports that carry no conversation id.
func contentConversationID(userID string, provider core.Provider, group *export.Conversation) core.ID {
	var sb strings.Builder
	sb.WriteString(userID)
	sb.WriteString("\x00")
	sb.WriteString(provider.String())
	sb.WriteString("\x00")
	sb.WriteString(group.Title)
	for _, m := range group.Messages {
		sb.WriteString("\x00")
		sb.WriteString(m.Role.String())
		sb.WriteString("\x1f")
		sb.WriteString(m.Contents)
	}
	return core.IDFromContent(sb.String())
}

// mergeConversation folds a parsed group into the stored conversation, or
// builds a fresh record. Updates are non-destructive: a non-empty stored
// title is never blanked, metadata keys are added, never removed.
func mergeConversation(existing *core.Conversation, group *export.Conversation, upload *core.FileUpload, id core.ID) *core.Conversation {
	if existing == nil {
		return &core.Conversation{
			Id:         id,
			UserId:     upload.UserId,
			Provider:   upload.Provider,
			ExternalId: group.ExternalId,
			Title:      group.Title,
			SourceFile: upload.Filename,
			Metadata:   group.Metadata,
		}
	}

	merged := *existing
	if group.Title != "" {
		merged.Title = group.Title
	}
	if len(group.Metadata) > 0 {
		if merged.Metadata == nil {
			merged.Metadata = make(map[string]string, len(group.Metadata))
		}
		for k, v := range group.Metadata {
			merged.Metadata[k] = v
		}
	}
	return &merged
}
