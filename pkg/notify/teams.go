package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"regwatch/pkg/domain"
)

// Teams posts discovery notifications to a Microsoft Teams incoming webhook
// using the legacy MessageCard format
type Teams struct {
	url    string
	client *http.Client
}

// TeamsParams defines Teams notifier configuration
type TeamsParams struct {
	URL     string
	Timeout time.Duration
}

// NewTeams creates a Teams notifier
func NewTeams(params TeamsParams) *Teams {
	timeout := params.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Teams{url: params.URL, client: &http.Client{Timeout: timeout}}
}

// Name implements Notifier
func (t *Teams) Name() string { return "teams" }

type teamsCard struct {
	Type            string        `json:"@type"`
	Context         string        `json:"@context"`
	Summary         string        `json:"summary"`
	ThemeColor      string        `json:"themeColor"`
	Title           string        `json:"title"`
	Sections        []teamsSection `json:"sections"`
	PotentialAction []teamsAction `json:"potentialAction"`
}

type teamsSection struct {
	ActivityTitle    string      `json:"activityTitle"`
	ActivitySubtitle string      `json:"activitySubtitle"`
	Facts            []teamsFact `json:"facts"`
	Markdown         bool        `json:"markdown"`
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type teamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []teamsTarget `json:"targets"`
}

type teamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// Send posts the MessageCard for one event
func (t *Teams) Send(ctx context.Context, ev domain.Event) error {
	subtitle := ev.DeadlineText
	if subtitle == "" {
		subtitle = "Date not available"
	}
	description := ev.Description
	if description == "" {
		description = "No description available"
	}

	card := teamsCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    "New Event: " + ev.Title,
		ThemeColor: "0078D7",
		Title:      "New Event Detected!",
		Sections: []teamsSection{{
			ActivityTitle:    ev.Title,
			ActivitySubtitle: subtitle,
			Facts:            []teamsFact{{Name: "Description:", Value: description}},
			Markdown:         true,
		}},
		PotentialAction: []teamsAction{{
			Type:    "OpenUri",
			Name:    "View Event",
			Targets: []teamsTarget{{OS: "default", URI: ev.Link}},
		}},
	}

	body, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal teams card: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create teams request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post teams notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("teams webhook returned status %d", resp.StatusCode)
	}
	return nil
}
