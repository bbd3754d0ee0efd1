package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/hearthai/hearth/pkg/models"
)

// CalendarConfig holds the OAuth2 credentials the calendar tool uses
// to call the Google Calendar API on the operator's behalf. The
// refresh token is obtained once through the same OAuth flow shape
// the teacher's internal/auth package already implements for sign-in;
// here it authorizes a background tool call instead of a user
// session.
type CalendarConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	CalendarID   string // defaults to "primary"

	HTTPClient *http.Client // optional, defaults to http.DefaultClient
}

func (c CalendarConfig) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{"https://www.googleapis.com/auth/calendar.readonly"},
	}
}

type calendarListParams struct {
	TimeMin string `json:"timeMin,omitempty"`
	TimeMax string `json:"timeMax,omitempty"`
	MaxResults int `json:"maxResults,omitempty"`
}

type calendarEvent struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Start   struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`
	End struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"end"`
}

type calendarEventsResponse struct {
	Items []calendarEvent `json:"items"`
}

// CalendarTool returns a tool that lists upcoming events on the
// configured Google Calendar, refreshing an access token from
// cfg.RefreshToken via golang.org/x/oauth2 before every call.
func CalendarTool(cfg CalendarConfig) (models.ToolDescriptor, SystemToolFunc) {
	descriptor := models.ToolDescriptor{
		Name:             "calendar_list_events",
		Description:      "Lists upcoming events on the operator's Google Calendar within an optional time window.",
		ShortDescription: "List upcoming calendar events",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timeMin":    map[string]any{"type": "string", "description": "RFC3339 lower bound, defaults to now"},
				"timeMax":    map[string]any{"type": "string", "description": "RFC3339 upper bound, optional"},
				"maxResults": map[string]any{"type": "integer", "description": "Maximum events to return, defaults to 10"},
			},
		},
	}

	oauthCfg := cfg.oauthConfig()
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	calendarID := strings.TrimSpace(cfg.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}

	fn := func(ctx context.Context, args any, tctx models.ToolContext) (models.ToolResult, error) {
		if strings.TrimSpace(cfg.RefreshToken) == "" {
			return models.ToolResult{OK: false, Error: "calendar tool is not configured with a refresh token"}, nil
		}

		m, _ := args.(map[string]any)
		var params calendarListParams
		if m != nil {
			if raw, err := json.Marshal(m); err == nil {
				_ = json.Unmarshal(raw, &params)
			}
		}
		if params.TimeMin == "" {
			params.TimeMin = time.Now().UTC().Format(time.RFC3339)
		}
		if params.MaxResults <= 0 {
			params.MaxResults = 10
		}

		tokenSource := oauthCfg.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, httpClient), &oauth2.Token{
			RefreshToken: cfg.RefreshToken,
		})
		client := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, httpClient), tokenSource)

		reqURL := fmt.Sprintf(
			"https://www.googleapis.com/calendar/v3/calendars/%s/events?timeMin=%s&maxResults=%d&singleEvents=true&orderBy=startTime",
			calendarID, params.TimeMin, params.MaxResults,
		)
		if params.TimeMax != "" {
			reqURL += "&timeMax=" + params.TimeMax
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return models.ToolResult{}, fmt.Errorf("build calendar request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return models.ToolResult{OK: false, Error: err.Error()}, nil
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			return models.ToolResult{OK: false, Error: fmt.Sprintf("calendar API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}, nil
		}

		var events calendarEventsResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&events); err != nil {
			return models.ToolResult{}, fmt.Errorf("decode calendar response: %w", err)
		}

		out := make([]map[string]any, 0, len(events.Items))
		for _, e := range events.Items {
			start := e.Start.DateTime
			if start == "" {
				start = e.Start.Date
			}
			end := e.End.DateTime
			if end == "" {
				end = e.End.Date
			}
			out = append(out, map[string]any{
				"id":      e.ID,
				"summary": e.Summary,
				"start":   start,
				"end":     end,
			})
		}
		return models.ToolResult{OK: true, Data: map[string]any{"events": out}}, nil
	}

	return descriptor, fn
}
