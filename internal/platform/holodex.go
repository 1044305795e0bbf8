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

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// holodexTimeout is the "holodex-style metadata fetch (optional): 5 min"
// bound by holodexTimeout.
const holodexTimeout = 5 * time.Minute

// SecondarySource is an optional HTTP-based metadata lookup consulted
// alongside the extractor binary, authenticated with the platform API
// token as a bearer credential via golang.org/x/oauth2's static token
// source carried on the http.Client (this token never expires or rotates
// from clipforge's point of view, so a StaticTokenSource is the right fit,
// not a refreshing one).
type SecondarySource struct {
	BaseURL string
	client  *http.Client
}

// NewSecondarySource constructs a SecondarySource authenticated with apiToken.
// A zero-value apiToken disables authentication (useful against a local test
// server); baseURL should have no trailing slash.
func NewSecondarySource(baseURL, apiToken string) *SecondarySource {
	var client *http.Client
	if apiToken != "" {
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiToken, TokenType: "Bearer"})
		client = oauth2.NewClient(context.Background(), src)
	} else {
		client = http.DefaultClient
	}
	return &SecondarySource{BaseURL: baseURL, client: client}
}

// channelLiveResponse is the subset of the secondary source's JSON response
// this package consults.
type channelLiveResponse struct {
	Videos []struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Status     string `json:"status"` // "live", "upcoming", "past"
		StartScheduled string `json:"start_scheduled"`
	} `json:"items"`
}

// LiveForChannel asks the secondary source whether channelID currently has a
// live or upcoming broadcast, bounded by holodexTimeout regardless of the
// caller's own context deadline.
func (s *SecondarySource) LiveForChannel(ctx context.Context, channelID string) (*InfoRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, holodexTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/live?channel_id=%s", s.BaseURL, channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("platform: building secondary-source request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: secondary-source request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: secondary source returned status %d", resp.StatusCode)
	}

	var parsed channelLiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("platform: decoding secondary-source response: %w", err)
	}
	if len(parsed.Videos) == 0 {
		return nil, nil
	}

	v := parsed.Videos[0]
	rec := &InfoRecord{
		Platform:  "Y",
		Title:     stripPlatformTitleSuffix(v.Title),
		ChannelID: channelID,
		StreamID:  v.ID,
	}
	switch v.Status {
	case "live":
		rec.Online = Online
	case "upcoming":
		rec.Online = Future
	case "past":
		rec.Online = Past
	default:
		rec.Online = Unknown
	}
	if v.StartScheduled != "" {
		if t, err := time.Parse(time.RFC3339, v.StartScheduled); err == nil {
			rec.StartTime = t
		}
	}
	return rec, nil
}
