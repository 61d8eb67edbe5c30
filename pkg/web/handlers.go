package web

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/Bhuman-Patel/Talking-Avatar/internal/log"
	"github.com/Bhuman-Patel/Talking-Avatar/pkg/broker"
)

// handleNegotiate relays a raw SDP offer to the upstream provider and
// returns the raw SDP answer. Upstream failures pass through verbatim with
// the upstream status code so the client sees real diagnostics.
func (s *Server) handleNegotiate(c *fiber.Ctx) error {
	offer := string(c.Body())
	if offer == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing SDP offer")
	}

	answer, err := s.negotiator.Negotiate(c.Context(), offer)
	if err != nil {
		return s.sendBrokerError(c, err)
	}

	s.publish("session", "relayed SDP exchange")

	c.Set(fiber.HeaderContentType, "application/sdp")
	return c.SendString(answer)
}

// handleMint returns a pre-minted ephemeral credential for clients running
// the token strategy. Response shape matches what those clients expect:
// result.client_secret.value plus the chosen model.
func (s *Server) handleMint(c *fiber.Ctx) error {
	cred, err := s.negotiator.Mint(c.Context())
	if err != nil {
		return s.sendBrokerError(c, err)
	}

	s.publish("session", "minted ephemeral credential for "+cred.Model)

	return c.JSON(fiber.Map{
		"result": fiber.Map{
			"client_secret": fiber.Map{"value": cred.Value},
			"model":         cred.Model,
		},
	})
}

// handleModels lists the model ids visible to the configured credential.
// Operational diagnosis only; the protocol does not depend on it.
func (s *Server) handleModels(c *fiber.Ctx) error {
	models, err := s.negotiator.ListModels(c.Context())
	if err != nil {
		return s.sendBrokerError(c, err)
	}

	s.publish("models", fmt.Sprintf("listed %d models", len(models)))

	return c.JSON(fiber.Map{
		"count":  len(models),
		"models": models,
	})
}

// handleHealth reports liveness plus how many feed subscribers are attached.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":       "ok",
		"feed_clients": s.events.ClientCount(),
	})
}

func (s *Server) sendBrokerError(c *fiber.Ctx, err error) error {
	var credErr *broker.CredentialError
	if errors.As(err, &credErr) {
		log.Warn("upstream negotiation failed", "status", credErr.Status)
		s.publish("error", fmt.Sprintf("upstream returned %d", credErr.Status))
		return c.Status(credErr.Status).SendString(credErr.Body)
	}

	if errors.Is(err, broker.ErrNoCapableModel) {
		log.Error("no capable model", "err", err)
		s.publish("error", err.Error())
		return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
	}

	log.Error("broker request failed", "err", err)
	s.publish("error", err.Error())
	return c.Status(fiber.StatusInternalServerError).SendString(err.Error())
}
