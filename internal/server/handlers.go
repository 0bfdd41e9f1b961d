package server

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-notify-gateway/internal/gateway"
	"github.com/goliatone/go-notify-gateway/pkg/adapters"
	"github.com/goliatone/go-notify-gateway/pkg/domain"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/logger"
	"github.com/goliatone/go-notify-gateway/pkg/interfaces/store"
	"github.com/google/uuid"
)

type sendPayload struct {
	PhoneNumber     string         `json:"phone_number"`
	EmailAddress    string         `json:"email_address"`
	TemplateID      string         `json:"template_id"`
	Content         string         `json:"content"`
	Personalisation map[string]any `json:"personalisation"`
	Reference       string         `json:"reference"`
	BillingCode     string         `json:"billing_code"`
	CallbackURL     string         `json:"callback_url"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Errors     []errorBody `json:"errors"`
	StatusCode int         `json:"status_code"`
}

func writeError(c *fiber.Ctx, status int, kind, message string) error {
	return c.Status(status).JSON(errorEnvelope{
		Errors:     []errorBody{{Error: kind, Message: message}},
		StatusCode: status,
	})
}

// SendSMS accepts an SMS send request.
func (s *Server) SendSMS(c *fiber.Ctx) error {
	var payload sendPayload
	if err := c.BodyParser(&payload); err != nil {
		return writeError(c, fiber.StatusBadRequest, "ValidationError", "request body is not valid JSON")
	}
	return s.send(c, domain.ChannelSMS, payload.PhoneNumber, payload)
}

// SendEmail accepts an email send request.
func (s *Server) SendEmail(c *fiber.Ctx) error {
	var payload sendPayload
	if err := c.BodyParser(&payload); err != nil {
		return writeError(c, fiber.StatusBadRequest, "ValidationError", "request body is not valid JSON")
	}
	return s.send(c, domain.ChannelEmail, payload.EmailAddress, payload)
}

func (s *Server) send(c *fiber.Ctx, channel, recipient string, payload sendPayload) error {
	outcome, err := s.gateway.Send(c.UserContext(), bearerToken(c), gateway.SendInput{
		Channel:         channel,
		Recipient:       recipient,
		TemplateRef:     payload.TemplateID,
		Content:         payload.Content,
		Personalisation: payload.Personalisation,
		Reference:       payload.Reference,
		BillingCode:     payload.BillingCode,
		CallbackURL:     payload.CallbackURL,
	})
	if err != nil {
		return s.sendError(c, err)
	}

	if !outcome.Completed() {
		status := fiber.StatusBadGateway
		kind := "ProviderError"
		if outcome.Result.FailureClass == domain.FailureTransient {
			status = fiber.StatusGatewayTimeout
			kind = "ProviderTimeout"
		}
		s.logger.Warn("dispatch failed",
			logger.Field{Key: "channel", Value: channel},
			logger.Field{Key: "provider", Value: outcome.Result.Provider},
			logger.Field{Key: "failure_class", Value: outcome.Result.FailureClass})
		return writeError(c, status, kind, outcome.Result.ErrorDetail)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":                  outcome.NotificationID,
		"reference":           outcome.Result.ProviderMessageID,
		"client_reference":    payload.Reference,
		"provider":            outcome.Result.Provider,
		"provider_message_id": outcome.Result.ProviderMessageID,
		"status":              domain.StatusSending,
	})
}

func (s *Server) sendError(c *fiber.Ctx, err error) error {
	var verr *gateway.ValidationError
	var rle *gateway.RateLimitError
	switch {
	case gateway.IsAuthError(err):
		return writeError(c, fiber.StatusUnauthorized, "AuthError", err.Error())
	case errors.As(err, &rle):
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(rle)))
		return writeError(c, fiber.StatusTooManyRequests, "RateLimitError", err.Error())
	case errors.As(err, &verr):
		return writeError(c, fiber.StatusBadRequest, "ValidationError", err.Error())
	case errors.Is(err, adapters.ErrNoProviderForChannel):
		return writeError(c, fiber.StatusInternalServerError, "ConfigurationError", err.Error())
	default:
		s.logger.Error("send pipeline error", logger.Field{Key: "error", Value: err})
		return writeError(c, fiber.StatusInternalServerError, "ServerError", "internal error")
	}
}

// GetNotification returns a stored notification row, scoped to the caller.
func (s *Server) GetNotification(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "ValidationError", "notification id must be a uuid")
	}

	record, err := s.gateway.GetNotification(c.UserContext(), bearerToken(c), id)
	if err != nil {
		if gateway.IsAuthError(err) {
			return writeError(c, fiber.StatusUnauthorized, "AuthError", err.Error())
		}
		if errors.Is(err, store.ErrNotFound) {
			return writeError(c, fiber.StatusNotFound, "NotFoundError", "notification not found")
		}
		s.logger.Error("notification lookup error", logger.Field{Key: "error", Value: err})
		return writeError(c, fiber.StatusInternalServerError, "ServerError", "internal error")
	}

	return c.JSON(fiber.Map{
		"id":                  record.ID,
		"channel":             record.Channel,
		"recipient":           record.Recipient,
		"template_id":         record.TemplateRef,
		"client_reference":    record.Reference,
		"status":              record.Status,
		"provider":            record.Provider,
		"provider_message_id": record.ProviderMessageID,
		"attempts":            record.Attempts,
		"error_detail":        record.ErrorDetail,
		"created_at":          record.CreatedAt,
		"updated_at":          record.UpdatedAt,
	})
}

// Healthcheck reports process liveness.
func (s *Server) Healthcheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(header)
}

func retryAfterSeconds(err *gateway.RateLimitError) int {
	secs := int(math.Ceil(err.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
