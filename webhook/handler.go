package webhook

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	stripelib "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	gateway "github.com/dealbase/go-gateway"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// SignatureHeader carries the provider's payload signature.
const SignatureHeader = "Stripe-Signature"

// Handler verifies billing provider webhook signatures and hands verified
// events to the synchronizer. Processing failures are logged but still
// acknowledged with a 200, so the provider does not retry-storm an endpoint
// that will keep failing; only signature and payload problems get a 4xx.
type Handler struct {
	secret string
	sync   *Synchronizer
	logger gateway.Logger
}

type HandlerOption func(*Handler)

func WithHandlerLogger(logger gateway.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func NewHandler(secret string, sync *Synchronizer, opts ...HandlerOption) *Handler {
	h := &Handler{
		secret: secret,
		sync:   sync,
		logger: gateway.DefaultLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the webhook route.
func (h *Handler) Register(app *fiber.App, path string) {
	app.Post(path, h.Handle)
}

// Handle is the POST endpoint for provider events.
func (h *Handler) Handle(c *fiber.Ctx) error {
	if strings.TrimSpace(h.secret) == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "webhook secret not configured",
		})
	}

	payload := c.Body()
	if len(payload) > webhookBodyLimit {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "payload too large",
		})
	}

	sigHeader := c.Get(SignatureHeader)
	if strings.TrimSpace(sigHeader) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing signature",
		})
	}

	event, err := stripewebhook.ConstructEventWithOptions(payload, sigHeader, h.secret, stripewebhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid signature",
		})
	}

	if err := h.process(c.UserContext(), &event); err != nil {
		h.logger.Error("webhook: processing failed for %s (%s): %v", event.Type, event.ID, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// process shields the synchronizer so a panic in event handling cannot take
// down the endpoint; the provider still gets its acknowledgement.
func (h *Handler) process(ctx context.Context, event *stripelib.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("webhook: handler panic for %s (%s): %v", event.Type, event.ID, r)
		}
	}()
	return h.sync.Process(ctx, event)
}
