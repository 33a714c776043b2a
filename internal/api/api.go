package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"storefront/internal/entity"
	"storefront/internal/service"
)

const (
	HeaderSessionID      = "X-Session-ID"
	HeaderIdempotencyKey = "Idempotency-Key"

	sessionContextKey = "session"
)

type StorefrontHandler struct {
	svc *service.StorefrontService
}

func NewStorefrontHandler(svc *service.StorefrontService) *StorefrontHandler {
	return &StorefrontHandler{svc: svc}
}

// AccountClaims are issued by the identity service.
type AccountClaims struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	jwt.RegisteredClaims
}

func (c *AccountClaims) Account() entity.Account {
	return entity.Account{FullName: c.FullName, PhoneNumber: c.PhoneNumber}
}

// SessionMiddleware reads X-Session-ID, issuing a new id when the header is
// missing or malformed, and echoes it back on the response.
func SessionMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(HeaderSessionID))
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.NewString()
			}
			c.Set(sessionContextKey, id)
			c.Response().Header().Set(HeaderSessionID, id)
			return next(c)
		}
	}
}

func sessionID(c echo.Context) string {
	id, _ := c.Get(sessionContextKey).(string)
	return id
}

func JWTMiddleware(secret []byte) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: secret,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(AccountClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		},
	})
}

func accountToken(c echo.Context) (*jwt.Token, *AccountClaims, bool) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok {
		return nil, nil, false
	}
	claims, ok := token.Claims.(*AccountClaims)
	return token, claims, ok
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrInvalidReference),
		errors.Is(err, entity.ErrEmptyCart),
		errors.Is(err, entity.ErrMixedBranches),
		errors.Is(err, entity.ErrUnknownPaymentMethod),
		errors.Is(err, entity.ErrInvalidIdentity),
		errors.Is(err, entity.ErrUnknownBranch):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, entity.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrDuplicateSubmission),
		errors.Is(err, entity.ErrVariantUnavailable):
		return http.StatusConflict
	case errors.Is(err, entity.ErrOrderSubmission):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c echo.Context, err error) error {
	return c.JSON(statusFor(err), map[string]string{"error": err.Error()})
}

// ListProducts --> GET /products?category=a,b&branch=main
func (h *StorefrontHandler) ListProducts(c echo.Context) error {
	var categories []string
	for _, raw := range c.QueryParams()["category"] {
		for _, cat := range strings.Split(raw, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				categories = append(categories, cat)
			}
		}
	}

	products, err := h.svc.ListProducts(c.Request().Context(), categories, c.QueryParam("branch"))
	if err != nil {
		return respondError(c, err)
	}
	if products == nil {
		products = []entity.Product{}
	}
	return c.JSON(http.StatusOK, products)
}

// Branches --> GET /session/branch
func (h *StorefrontHandler) Branches(c echo.Context) error {
	branches, selected, err := h.svc.Branches(c.Request().Context(), sessionID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"selected": selected,
		"branches": branches,
	})
}

// SelectBranch --> PUT /session/branch
func (h *StorefrontHandler) SelectBranch(c echo.Context) error {
	req := struct {
		Branch string `json:"branch"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	if err := h.svc.SelectBranch(c.Request().Context(), sessionID(c), req.Branch); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"branch": req.Branch})
}

// Login --> POST /session/login (bearer token required)
func (h *StorefrontHandler) Login(c echo.Context) error {
	_, claims, ok := accountToken(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	account := claims.Account()
	if err := h.svc.Login(c.Request().Context(), sessionID(c), account); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, account)
}

// Logout --> DELETE /session/login
func (h *StorefrontHandler) Logout(c echo.Context) error {
	if err := h.svc.Logout(c.Request().Context(), sessionID(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// OpenCart --> GET /cart
func (h *StorefrontHandler) OpenCart(c echo.Context) error {
	session := sessionID(c)
	st, err := h.svc.OpenCart(c.Request().Context(), session)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newCartView(session, st))
}

// AddLine --> POST /cart/lines
func (h *StorefrontHandler) AddLine(c echo.Context) error {
	req := struct {
		ProductID    entity.ProductID `json:"productId"`
		Branch       string           `json:"branch"`
		VariantIndex *int             `json:"variantIndex"`
	}{}
	if err := c.Bind(&req); err != nil || req.ProductID == "" || req.VariantIndex == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	ctx := c.Request().Context()
	session := sessionID(c)
	if _, err := h.svc.AddToCart(ctx, session, req.ProductID, req.Branch, *req.VariantIndex); err != nil {
		return respondError(c, err)
	}

	st, err := h.svc.Cart(ctx, session)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newCartView(session, st))
}

// RemoveLine --> DELETE /cart/lines
func (h *StorefrontHandler) RemoveLine(c echo.Context) error {
	req := struct {
		ProductID entity.ProductID `json:"productId"`
		Branch    string           `json:"branch"`
		Variant   string           `json:"variant"`
		Amount    int              `json:"amount"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	ctx := c.Request().Context()
	session := sessionID(c)
	if _, err := h.svc.RemoveFromCart(ctx, session, req.ProductID, req.Branch, req.Variant, req.Amount); err != nil {
		return respondError(c, err)
	}

	st, err := h.svc.Cart(ctx, session)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newCartView(session, st))
}

// ClearCart --> DELETE /cart
func (h *StorefrontHandler) ClearCart(c echo.Context) error {
	if err := h.svc.AbandonCart(c.Request().Context(), sessionID(c)); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Checkout --> POST /checkout
func (h *StorefrontHandler) Checkout(c echo.Context) error {
	req := struct {
		Checkout string `json:"checkout"`
		Guest    struct {
			Name    string `json:"name"`
			Contact string `json:"contact"`
		} `json:"guest"`
		PaymentMethod entity.PaymentMethod `json:"paymentMethod"`
	}{}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request payload"})
	}

	checkout := service.CheckoutRequest{
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
		PaymentMethod:  req.PaymentMethod,
	}
	switch strings.ToLower(req.Checkout) {
	case "", string(entity.IdentityGuest):
		checkout.Guest = entity.GuestIdentity(req.Guest.Name, req.Guest.Contact)
	case string(entity.IdentityAccount):
		checkout.UseAccount = true
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "checkout must be guest or account"})
	}

	placed, err := h.svc.Checkout(c.Request().Context(), sessionID(c), checkout)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, newOrderView(placed))
}

// TrackOrder --> GET /orders/:orderNumber
func (h *StorefrontHandler) TrackOrder(c echo.Context) error {
	tracking, err := h.svc.TrackOrder(c.Request().Context(), c.Param("orderNumber"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newTrackingView(tracking))
}

// Receipt --> GET /orders/:orderNumber/receipt
func (h *StorefrontHandler) Receipt(c echo.Context) error {
	receipt, err := h.svc.Receipt(c.Request().Context(), c.Param("orderNumber"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, newReceiptView(receipt))
}

// OrderHistory --> GET /orders/mine (bearer token required)
func (h *StorefrontHandler) OrderHistory(c echo.Context) error {
	token, claims, ok := accountToken(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	orders, err := h.svc.OrderHistory(c.Request().Context(), claims.PhoneNumber, token.Raw)
	if err != nil {
		return respondError(c, err)
	}

	views := make([]orderView, 0, len(orders))
	for i := range orders {
		views = append(views, newOrderView(&orders[i]))
	}
	return c.JSON(http.StatusOK, views)
}

// PaymentMethods --> GET /checkout/payment-methods
func (h *StorefrontHandler) PaymentMethods(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.PaymentMethods())
}

// RegisterRoutes mounts the storefront routes on e.
func RegisterRoutes(e *echo.Echo, h *StorefrontHandler, jwtSecret []byte) {
	session := SessionMiddleware()
	auth := JWTMiddleware(jwtSecret)

	e.GET("/products", h.ListProducts)

	e.GET("/session/branch", h.Branches, session)
	e.PUT("/session/branch", h.SelectBranch, session)
	e.POST("/session/login", h.Login, session, auth)
	e.DELETE("/session/login", h.Logout, session)

	e.GET("/cart", h.OpenCart, session)
	e.POST("/cart/lines", h.AddLine, session)
	e.DELETE("/cart/lines", h.RemoveLine, session)
	e.DELETE("/cart", h.ClearCart, session)

	e.GET("/checkout/payment-methods", h.PaymentMethods)
	e.POST("/checkout", h.Checkout, session)

	e.GET("/orders/mine", h.OrderHistory, auth)
	e.GET("/orders/:orderNumber", h.TrackOrder)
	e.GET("/orders/:orderNumber/receipt", h.Receipt)
}
