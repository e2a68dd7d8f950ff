// Package api is the HTTP adapter for the MyCoach backend. It binds echo
// routes to the service managers and maps the named domain failure
// conditions to client-facing responses without leaking internal detail.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/gaelgael5/mycoach-sub001/account"
	"github.com/gaelgael5/mycoach-sub001/domain"
	"github.com/gaelgael5/mycoach-sub001/oauthconn"
	"github.com/gaelgael5/mycoach-sub001/otp"
	"github.com/gaelgael5/mycoach-sub001/privacy"
	"github.com/gaelgael5/mycoach-sub001/session"
)

type Handler struct {
	storage      domain.Storage
	verification *otp.Manager
	sessions     *session.Manager
	oauth        *oauthconn.Manager
}

func NewHandler(storage domain.Storage, verification *otp.Manager, sessions *session.Manager, oauth *oauthconn.Manager) *Handler {
	return &Handler{
		storage:      storage,
		verification: verification,
		sessions:     sessions,
		oauth:        oauth,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	protected := g.Group("")
	protected.Use(h.AuthMiddleware)

	protected.POST("/phone/verification/request", h.HandleVerificationRequest)
	protected.POST("/phone/verification/confirm", h.HandleVerificationConfirm)

	protected.GET("/profile", h.HandleGetProfile)
	protected.PUT("/profile", h.HandleUpdateProfile)

	protected.GET("/measurements", h.HandleListMeasurements)
	protected.POST("/measurements", h.HandleCreateMeasurement)

	protected.GET("/oauth/:provider/connect", h.HandleOAuthConnect)
	protected.GET("/oauth/:provider/callback", h.HandleOAuthCallback)
	protected.DELETE("/oauth/:provider", h.HandleOAuthDisconnect)
}

// AuthMiddleware validates the bearer token and loads the current user.
func (h *Handler) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			return h.fail(c, http.StatusUnauthorized, "authorization required")
		}

		sess, err := h.sessions.Validate(token)
		if err != nil {
			return h.fail(c, http.StatusUnauthorized, "unauthorized")
		}

		user, err := h.storage.GetUser(c.Request().Context(), sess.UserID)
		if err != nil {
			return h.fail(c, http.StatusUnauthorized, "unauthorized")
		}

		c.Set("user", user)
		return next(c)
	}
}

func currentUser(c echo.Context) *account.User {
	u, _ := c.Get("user").(*account.User)
	return u
}

// ---- Phone Verification ----

func (h *Handler) HandleVerificationRequest(c echo.Context) error {
	user := currentUser(c)

	if err := h.verification.Request(c.Request().Context(), user); err != nil {
		return h.verificationError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "sent"})
}

func (h *Handler) HandleVerificationConfirm(c echo.Context) error {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&body); err != nil {
		return h.fail(c, http.StatusBadRequest, "invalid request body")
	}

	user := currentUser(c)
	if err := h.verification.Confirm(c.Request().Context(), user, body.Code); err != nil {
		return h.verificationError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "verified"})
}

// verificationError maps each named condition to a distinct response. The
// raw error text stays server-side.
func (h *Handler) verificationError(c echo.Context, err error) error {
	var rateErr *otp.RateLimitError
	switch {
	case errors.Is(err, otp.ErrPhoneAlreadyVerified):
		return h.fail(c, http.StatusConflict, "phone already verified")
	case errors.As(err, &rateErr):
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		return h.fail(c, http.StatusTooManyRequests, "too many verification requests")
	case errors.Is(err, otp.ErrNoActiveVerification):
		return h.fail(c, http.StatusNotFound, "no active verification")
	case errors.Is(err, otp.ErrCodeExpired):
		return h.fail(c, http.StatusGone, "code expired")
	case errors.Is(err, otp.ErrMaxAttempts):
		return h.fail(c, http.StatusLocked, "too many attempts")
	case errors.Is(err, otp.ErrInvalidCode):
		return h.fail(c, http.StatusBadRequest, "invalid code")
	default:
		return h.fail(c, http.StatusInternalServerError, "internal error")
	}
}

// ---- Profile ----

func (h *Handler) HandleGetProfile(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c))
}

func (h *Handler) HandleUpdateProfile(c echo.Context) error {
	var body struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		BirthDate *string `json:"birth_date"`
		Notes     *string `json:"notes"`
	}
	if err := c.Bind(&body); err != nil {
		return h.fail(c, http.StatusBadRequest, "invalid request body")
	}

	user := currentUser(c)
	if body.FirstName != nil {
		user.FirstName = *body.FirstName
	}
	if body.LastName != nil {
		user.LastName = *body.LastName
	}
	if body.BirthDate != nil {
		user.BirthDate = body.BirthDate
	}
	if body.Notes != nil {
		user.Notes = body.Notes
	}
	user.UpdatedAt = time.Now()

	if err := h.storage.UpdateUser(c.Request().Context(), user); err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, user)
}

// ---- Measurements ----

func (h *Handler) HandleListMeasurements(c echo.Context) error {
	user := currentUser(c)

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	measurements, err := h.storage.ListMeasurements(c.Request().Context(), user.ID, page, limit)
	if err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusOK, measurements)
}

func (h *Handler) HandleCreateMeasurement(c echo.Context) error {
	var body struct {
		Kind    string    `json:"kind"`
		Value   string    `json:"value"`
		Unit    string    `json:"unit"`
		TakenAt time.Time `json:"taken_at"`
	}
	if err := c.Bind(&body); err != nil {
		return h.fail(c, http.StatusBadRequest, "invalid request body")
	}
	if body.Kind == "" || body.Value == "" {
		return h.fail(c, http.StatusBadRequest, "kind and value are required")
	}
	if body.TakenAt.IsZero() {
		body.TakenAt = time.Now()
	}

	user := currentUser(c)
	m := &account.Measurement{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Kind:      body.Kind,
		Value:     body.Value,
		Unit:      body.Unit,
		TakenAt:   body.TakenAt,
		CreatedAt: time.Now(),
	}

	if err := h.storage.CreateMeasurement(c.Request().Context(), m); err != nil {
		return h.storageError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

// ---- OAuth ----

func (h *Handler) HandleOAuthConnect(c echo.Context) error {
	state := uuid.New().String()
	url, err := h.oauth.AuthURL(c.Param("provider"), state)
	if err != nil {
		return h.fail(c, http.StatusNotFound, "unknown provider")
	}
	return c.JSON(http.StatusOK, map[string]string{"auth_url": url, "state": state})
}

func (h *Handler) HandleOAuthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return h.fail(c, http.StatusBadRequest, "missing authorization code")
	}

	user := currentUser(c)
	conn, err := h.oauth.Exchange(c.Request().Context(), c.Param("provider"), user.ID, code)
	if err != nil {
		return h.fail(c, http.StatusBadGateway, "provider exchange failed")
	}
	return c.JSON(http.StatusOK, conn)
}

func (h *Handler) HandleOAuthDisconnect(c echo.Context) error {
	user := currentUser(c)
	if err := h.oauth.Disconnect(c.Request().Context(), c.Param("provider"), user.ID); err != nil {
		return h.storageError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ---- Error helpers ----

func (h *Handler) storageError(c echo.Context, err error) error {
	var decErr *privacy.DecryptionError
	if errors.As(err, &decErr) {
		// Unreadable at-rest data is an operational incident, not a client
		// mistake; surface nothing about the crypto layer.
		return h.fail(c, http.StatusInternalServerError, "stored data unavailable")
	}
	return h.fail(c, http.StatusInternalServerError, "internal error")
}

func (h *Handler) fail(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}
