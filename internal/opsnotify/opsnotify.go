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

// Package opsnotify sends deduped operator alert emails over Mailjet:
// the same kind of message for the same entity is sent at most once per
// window, keyed by a per-subsystem notification Kind taxonomy.
package opsnotify

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

// Kind classifies the subsystem an alert originates from.
type Kind string

const (
	KindDownload Kind = "clip_download" // live or past-range downloader failures.
	KindCutter   Kind = "clip_cutter"   // cutter non-zero exit, corrupt output.
	KindWatcher  Kind = "clip_watcher"  // watcher DownloadForbidden, repeated extractor errors.
	KindJanitor  Kind = "clip_janitor"  // sweep couldn't reach budget.
	KindSoftware Kind = "clip_software" // anything else unexpected.
)

// TimeStore records the last time a given (key, kind) alert was sent, so
// Send can suppress repeats within a window.
type TimeStore interface {
	Set(key, kind string, t time.Time) error
	Get(key, kind string) (time.Time, error)
}

// Notifier sends deduped ops alerts over Mailjet. The zero value is usable
// but sends nothing until Init is called with a sender address.
type Notifier struct {
	mu         sync.Mutex
	sender     string
	recipient  string
	store      TimeStore
	publicKey  string
	privateKey string
}

// Init configures the notifier. Passing an empty sender disables actually
// sending mail (useful in tests); store may be nil to disable dedup.
func Init(sender, recipient, publicKey, privateKey string, store TimeStore) *Notifier {
	return &Notifier{
		sender:     sender,
		recipient:  recipient,
		store:      store,
		publicKey:  publicKey,
		privateKey: privateKey,
	}
}

// Send delivers msg tagged with kind for the given entity key, unless the
// same kind of message was already sent for that key within window.
// The metadata extractor's per-URL log dedup is separate and does not go
// through Send.
func (n *Notifier) Send(ctx context.Context, key string, kind Kind, msg string, window time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.store != nil {
		// A lookup error (no record yet included) just means "not sent
		// recently".
		if t, err := n.store.Get(key, string(kind)); err == nil && time.Since(t) < window {
			log.Printf("opsnotify: suppressing duplicate %s alert for %s", kind, key)
			return nil
		}
	}

	log.Printf("opsnotify: %s alert for %s: %s", kind, key, msg)

	if n.sender != "" && n.recipient != "" {
		clt := mailjet.NewMailjetClient(n.publicKey, n.privateKey)
		info := []mailjet.InfoMessagesV31{{
			From:     &mailjet.RecipientV31{Email: n.sender},
			To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: n.recipient}},
			Subject:  strings.Title(string(kind)) + " alert",
			TextPart: msg,
		}}
		_, err := clt.SendMailV31(&mailjet.MessagesV31{Info: info})
		if err != nil {
			return fmt.Errorf("opsnotify: could not send mail: %w", err)
		}
	}

	if n.store != nil {
		if err := n.store.Set(key, string(kind), time.Now()); err != nil {
			log.Printf("opsnotify: error setting last-sent time: %v", err)
		}
	}
	return nil
}

