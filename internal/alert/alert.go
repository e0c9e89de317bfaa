package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const footer = "redocdc"

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Manager struct {
	enabled      bool
	slackWebhook string
	httpClient   HTTPClient
}

type slackMessage struct {
	Text        string            `json:"text"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Fields []slackField `json:"fields"`
	Footer string       `json:"footer"`
	Ts     int64        `json:"ts"`
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func NewManager(enabled bool, slackWebhook string) *Manager {
	return NewManagerWithClient(enabled, slackWebhook, &http.Client{Timeout: 10 * time.Second})
}

func NewManagerWithClient(enabled bool, slackWebhook string, client HTTPClient) *Manager {
	return &Manager{
		enabled:      enabled,
		slackWebhook: slackWebhook,
		httpClient:   client,
	}
}

func (m *Manager) active() bool {
	return m != nil && m.enabled && m.slackWebhook != ""
}

// SendDecodeAlert reports a redo record that could not be decoded and was
// skipped.
func (m *Manager) SendDecodeAlert(sequence uint32, offset uint64, cause error) error {
	if !m.active() {
		return nil
	}

	msg := slackMessage{
		Text: "*REDO RECORD SKIPPED*",
		Attachments: []slackAttachment{
			{
				Color: "warning",
				Title: "Decode Error",
				Fields: []slackField{
					{Title: "Sequence", Value: fmt.Sprintf("%d", sequence), Short: true},
					{Title: "Offset", Value: fmt.Sprintf("%d", offset), Short: true},
					{Title: "Error", Value: cause.Error(), Short: false},
				},
				Footer: footer,
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

// SendCatalogAlert reports a catalog row that contradicts the mirrored
// dictionary.
func (m *Manager) SendCatalogAlert(table, rowID, details string) error {
	if !m.active() {
		return nil
	}

	msg := slackMessage{
		Text: "*CATALOG INCONSISTENCY*",
		Attachments: []slackAttachment{
			{
				Color: "danger",
				Title: "Dictionary Mirror Diverged",
				Fields: []slackField{
					{Title: "Table", Value: table, Short: true},
					{Title: "Row ID", Value: rowID, Short: true},
					{Title: "Details", Value: details, Short: false},
				},
				Footer: footer,
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

func (m *Manager) SendSystemAlert(title, message, severity string) error {
	if !m.active() {
		return nil
	}

	color := "danger"
	if severity == "warning" {
		color = "warning"
	} else if severity == "good" {
		color = "good"
	}

	msg := slackMessage{
		Text: fmt.Sprintf("*SYSTEM ALERT: %s*", title),
		Attachments: []slackAttachment{
			{
				Color: color,
				Title: title,
				Fields: []slackField{
					{Title: "Message", Value: message, Short: false},
				},
				Footer: footer,
				Ts:     time.Now().Unix(),
			},
		},
	}

	return m.sendSlackMessage(msg)
}

func (m *Manager) sendSlackMessage(msg slackMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, m.slackWebhook, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned non-200 status: %d", resp.StatusCode)
	}

	return nil
}
