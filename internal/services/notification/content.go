package notification

import (
	"fmt"

	"SignalEngine/internal/domain/models"
)

const smsMaxRunes = 160

var typeTitles = map[models.SignalType]string{
	models.SignalBuy:   "Buy signal",
	models.SignalSell:  "Sell signal",
	models.SignalAlert: "Alert signal",
	models.SignalHold:  "Hold signal",
}

// RenderContent builds the channel-independent payload for s.
func RenderContent(s *models.Signal) models.NotificationContent {
	title := fmt.Sprintf("Signal: %s", s.Asset)
	message := s.Description
	if t, ok := typeTitles[s.Type]; ok {
		title = fmt.Sprintf("%s: %s", t, s.Asset)
		message = fmt.Sprintf("%s %s generated\nstrength: %d/10\nconfidence: %.2f\nlevel: %s\n%s",
			s.Asset, t, s.Strength, s.Confidence, s.Level, s.Description)
	}
	return models.NotificationContent{
		Title:      title,
		Message:    message,
		Asset:      s.Asset,
		Type:       s.Type,
		Strength:   s.Strength,
		Confidence: s.Confidence,
		Level:      s.Level,
		SignalID:   s.SignalID,
		Timestamp:  s.Timestamp,
		Data: map[string]any{
			"description": s.Description,
			"expiry_time": s.ExpiryTime,
		},
	}
}

// SMSText is the single-message rendering: title, strength and confidence,
// cut to 160 characters.
func SMSText(c models.NotificationContent) string {
	text := fmt.Sprintf("%s %d/10 conf %.2f (%s)", c.Title, c.Strength, c.Confidence, c.Level)
	r := []rune(text)
	if len(r) > smsMaxRunes {
		r = r[:smsMaxRunes]
	}
	return string(r)
}

func EmailSubject(c models.NotificationContent) string {
	return fmt.Sprintf("[SignalEngine] %s", c.Title)
}

func EmailBody(c models.NotificationContent) string {
	return fmt.Sprintf("%s\n\nsignal: %s\ntime: %s\n", c.Message, c.SignalID, c.Timestamp.Format("2006-01-02 15:04:05 MST"))
}
