package telegram

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rentals/server/config"
	"rentals/server/internal/logging"
	"rentals/server/internal/models"
)

var ErrDisabled = errors.New("telegram alerts are not configured")

type Service struct {
	logger   *logrus.Logger
	client   *http.Client
	apiURL   string
	botToken string
}

func NewService(cfg *config.Config, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		apiURL:   strings.TrimSuffix(cfg.Telegram.APIURL, "/"),
		botToken: cfg.Telegram.BotToken,
	}
}

// Enabled reports whether a bot token is configured
func (s *Service) Enabled() bool {
	return s.botToken != ""
}

// SendMessage sends an HTML formatted message to a chat
func (s *Service) SendMessage(chatID, message string) error {
	if !s.Enabled() {
		return ErrDisabled
	}
	if chatID == "" {
		return errors.New("telegram chat ID is empty")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.apiURL, s.botToken)
	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	resp, err := s.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusNotFound:
			return errors.New("invalid bot token")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		default:
			return fmt.Errorf("telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	return nil
}

// NotifyNewListing tells a saved-search owner about a matching listing
func (s *Service) NotifyNewListing(chatID, searchName string, p *models.Property) error {
	if err := s.SendMessage(chatID, FormatListingAlert(searchName, p)); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"property_id": p.ID,
		"search":      searchName,
	}).Info("Listing alert sent")
	return nil
}

// FormatListingAlert renders the alert text for a listing
func FormatListingAlert(searchName string, p *models.Property) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<b>New listing for \"%s\"</b>\n\n", html.EscapeString(searchName))
	fmt.Fprintf(&b, "🏠 %s\n", html.EscapeString(p.Title))
	fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(p.Location))
	fmt.Fprintf(&b, "💰 $%d/month\n", p.Price)
	fmt.Fprintf(&b, "🛏️ %d bd · 🛁 %d ba", p.Bedrooms, p.Bathrooms)
	if p.Area > 0 {
		fmt.Fprintf(&b, " · 📐 %d sqft ($%.2f/sqft)", p.Area, float64(p.Price)/float64(p.Area))
	}
	b.WriteString("\n")
	if len(p.Amenities) > 0 {
		fmt.Fprintf(&b, "✨ %s\n", html.EscapeString(strings.Join(p.Amenities, ", ")))
	}
	fmt.Fprintf(&b, "\nListing ID: <code>%s</code>", html.EscapeString(p.ID))

	return b.String()
}
