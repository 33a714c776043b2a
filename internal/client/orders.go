package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"storefront/internal/entity"
)

// OrderClient calls the order service.
type OrderClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOrderClient(baseURL string, httpClient *http.Client) *OrderClient {
	return &OrderClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// CreateOrder --> POST /orders, with the order reference as Idempotency-Key.
func (c *OrderClient) CreateOrder(ctx context.Context, order *entity.Order) (*entity.Order, error) {
	var created entity.Order
	err := doJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/orders", order, &created,
		withHeader("Idempotency-Key", order.Reference))
	if err != nil {
		logger.Error().Err(err).Msgf("Error submitting order %s", order.OrderNumber)
		return nil, fmt.Errorf("%w: %v", entity.ErrOrderSubmission, err)
	}
	if created.OrderNumber == "" {
		created.OrderNumber = order.OrderNumber
	}
	return &created, nil
}

// GetOrder --> GET /orders/:orderNumber
func (c *OrderClient) GetOrder(ctx context.Context, orderNumber string) (*entity.Order, error) {
	var order entity.Order
	err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/orders/"+url.PathEscape(orderNumber), nil, &order)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", entity.ErrOrderNotFound, orderNumber)
		}
		return nil, err
	}
	return &order, nil
}

// GetOrdersByPhone --> GET /orders/user/:phone with the shopper's bearer token.
func (c *OrderClient) GetOrdersByPhone(ctx context.Context, phone, token string) ([]entity.Order, error) {
	var orders []entity.Order
	bearer := ""
	if token != "" {
		bearer = "Bearer " + token
	}
	err := doJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/orders/user/"+url.PathEscape(phone), nil, &orders,
		withHeader("Authorization", bearer))
	if err != nil {
		if isNotFound(err) {
			return []entity.Order{}, nil
		}
		return nil, err
	}
	return orders, nil
}

func isNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound
}
