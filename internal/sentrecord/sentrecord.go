/*
LICENSE
  Copyright (C) 2026 the Clipforge authors

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

// Package sentrecord implements the sent_clips and sent_screenshots
// tables: a record of which clip or screenshot was sent in reply to which
// chat message, so a later command (e.g. "delete my last clip") can look
// up and remove the right artifact without re-deriving it.
package sentrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/clipforge/internal/durable"
)

// SentClip records a clip sent in reply to a chat message.
type SentClip struct {
	CorrelationID string        `json:"correlation_id"` // uuid, independent of the chat message id key
	MessageID     string        `json:"message_id"`
	StreamUID     string        `json:"stream_uid"`
	Path          string        `json:"path"`
	FromStart     time.Duration `json:"from_start"`
	Duration      time.Duration `json:"duration"`
	SentAt        time.Time     `json:"sent_at"`
}

// SentScreenshot records a screenshot sent in reply to a chat message.
type SentScreenshot struct {
	CorrelationID string        `json:"correlation_id"`
	MessageID     string        `json:"message_id"`
	StreamUID     string        `json:"stream_uid"`
	Path          string        `json:"path"`
	FromStart     time.Duration `json:"from_start"`
	SentAt        time.Time     `json:"sent_at"`
}

// Recorder persists SentClip/SentScreenshot records, keyed by chat message
// id, into the durable tables reserved for them (durable.TableSentClips,
// durable.TableSentScreenshots).
type Recorder struct {
	clips       durable.TableStore
	screenshots durable.TableStore
}

// NewRecorder constructs a Recorder over the two backing tables.
func NewRecorder(clips, screenshots durable.TableStore) *Recorder {
	return &Recorder{clips: clips, screenshots: screenshots}
}

// RecordClip stores rec under its MessageID, stamping a fresh correlation ID
// and SentAt if either is unset.
func (r *Recorder) RecordClip(ctx context.Context, rec SentClip) error {
	if rec.CorrelationID == "" {
		rec.CorrelationID = uuid.New().String()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sentrecord: marshaling sent clip: %w", err)
	}
	return r.clips.Put(ctx, durable.Key{rec.MessageID}, data)
}

// RecordScreenshot stores rec under its MessageID, stamping a fresh
// correlation ID and SentAt if either is unset.
func (r *Recorder) RecordScreenshot(ctx context.Context, rec SentScreenshot) error {
	if rec.CorrelationID == "" {
		rec.CorrelationID = uuid.New().String()
	}
	if rec.SentAt.IsZero() {
		rec.SentAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("sentrecord: marshaling sent screenshot: %w", err)
	}
	return r.screenshots.Put(ctx, durable.Key{rec.MessageID}, data)
}

// ClipByMessage looks up the clip sent in reply to messageID.
func (r *Recorder) ClipByMessage(ctx context.Context, messageID string) (*SentClip, error) {
	raw, err := r.clips.Get(ctx, durable.Key{messageID})
	if err != nil {
		return nil, err
	}
	var rec SentClip
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("sentrecord: decoding sent clip: %w", err)
	}
	return &rec, nil
}

// ScreenshotByMessage looks up the screenshot sent in reply to messageID.
func (r *Recorder) ScreenshotByMessage(ctx context.Context, messageID string) (*SentScreenshot, error) {
	raw, err := r.screenshots.Get(ctx, durable.Key{messageID})
	if err != nil {
		return nil, err
	}
	var rec SentScreenshot
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("sentrecord: decoding sent screenshot: %w", err)
	}
	return &rec, nil
}
