package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// Client sends notifications via Telegram Bot API
type Client struct {
	token  string
	chatID string
	logger *zap.Logger
	client *http.Client
}

// Config for Telegram client
type Config struct {
	Token  string
	ChatID string
}

// NewClient creates a new Telegram notification client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		token:  cfg.Token,
		chatID: cfg.ChatID,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NotificationPriority defines notification urgency (for compatibility)
type NotificationPriority string

const (
	PriorityMin     NotificationPriority = "min"
	PriorityLow     NotificationPriority = "low"
	PriorityDefault NotificationPriority = "default"
	PriorityHigh    NotificationPriority = "high"
	PriorityUrgent  NotificationPriority = "urgent"
)

// sendText sends a text message to Telegram
func (c *Client) sendText(text string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", c.token)

	payload := map[string]interface{}{
		"chat_id":    c.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := c.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// sendPhoto sends a photo with caption to Telegram
func (c *Client) sendPhoto(photoPath, caption string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendPhoto", c.token)

	file, err := os.Open(photoPath)
	if err != nil {
		return fmt.Errorf("open photo: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fw, err := writer.CreateFormFile("photo", filepath.Base(photoPath))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}

	_, err = io.Copy(fw, file)
	if err != nil {
		return fmt.Errorf("copy file: %w", err)
	}

	writer.WriteField("chat_id", c.chatID)
	if caption != "" {
		writer.WriteField("caption", caption)
		writer.WriteField("parse_mode", "Markdown")
	}
	writer.Close()

	req, err := http.NewRequest("POST", url, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// formatMessage formats message with a priority marker and markdown title
func formatMessage(marker, title, message string, priority NotificationPriority) string {
	priorityMarker := ""
	switch priority {
	case PriorityUrgent:
		priorityMarker = "[URGENT] "
	case PriorityHigh:
		priorityMarker = "[!] "
	}

	return fmt.Sprintf("%s%s *%s*\n%s", priorityMarker, marker, title, message)
}

// CoordinatorStarted sends notification when the coordinator starts
func (c *Client) CoordinatorStarted(version, hostname string) {
	text := formatMessage(">", "Hive Coordinator Started",
		fmt.Sprintf("Version: `%s`\nHost: `%s`\nTime: %s",
			version, hostname, time.Now().Format("2006-01-02 15:04:05")),
		PriorityDefault)

	if err := c.sendText(text); err != nil {
		c.logger.Error("failed to send notification", zap.Error(err))
	}
}

// CoordinatorStopped sends notification when the coordinator stops
func (c *Client) CoordinatorStopped(hostname string) {
	text := formatMessage("x", "Hive Coordinator Stopped",
		fmt.Sprintf("Host: `%s`\nTime: %s", hostname, time.Now().Format("2006-01-02 15:04:05")),
		PriorityDefault)

	if err := c.sendText(text); err != nil {
		c.logger.Error("failed to send notification", zap.Error(err))
	}
}

// BattleFinished sends a one-line summary when a battle's aggregate
// report is generated.
func (c *Client) BattleFinished(target string, completed, failed int, totalRequests uint64, totalRPS float64) {
	priority := PriorityDefault
	if failed > 0 {
		priority = PriorityHigh
	}

	text := formatMessage("#", "Battle Finished",
		fmt.Sprintf("Target: `%s`\nAgents: %d ok / %d failed\nRequests: *%d*\nRPS: *%.1f*",
			target, completed, failed, totalRequests, totalRPS),
		priority)

	if err := c.sendText(text); err != nil {
		c.logger.Error("failed to send notification", zap.Error(err))
	}
}

// AgentOffline sends notification when an agent is swept from the roster.
func (c *Client) AgentOffline(agentID string) {
	text := formatMessage("!", "Agent Offline",
		fmt.Sprintf("Agent: `%s`", agentID),
		PriorityHigh)

	if err := c.sendText(text); err != nil {
		c.logger.Error("failed to send notification", zap.Error(err))
	}
}

// SystemAlert sends a system-level alert
func (c *Client) SystemAlert(title, message string, priority NotificationPriority) {
	text := formatMessage("*", title, message, priority)

	if err := c.sendText(text); err != nil {
		c.logger.Error("failed to send notification", zap.Error(err))
	}
}
