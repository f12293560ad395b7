package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSession = "6f1c2a4e-8a57-4b7e-9d0f-1f6a3c9b2e11"

func newTestCartHandler(m *CartServiceMock) *CartHandler {
	return NewCartHandler(m, sessions{ttl: time.Hour})
}

func TestGetCart_Success(t *testing.T) {
	mock := &CartServiceMock{snapshot: &domain.CartSnapshot{
		Items: []domain.CartSnapshotItem{{
			ProductID:   1,
			ProductName: "Match Football",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("29.99"),
			TotalPrice:  decimal.RequireFromString("59.98"),
		}},
		Total:     decimal.RequireFromString("59.98"),
		ItemCount: 2,
	}}
	handler := newTestCartHandler(mock)

	recorder := httptest.NewRecorder()
	request := withSession(httptest.NewRequest(http.MethodGet, "/checkout/cart", nil), testSession)
	handler.GetCart(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, testSession, mock.sessionID)
	assert.Nil(t, sessionCookie(recorder), "existing session must not be reissued")

	var response struct {
		Items []struct {
			ProductID int64  `json:"product_id"`
			Quantity  int    `json:"quantity"`
			UnitPrice string `json:"unit_price"`
		} `json:"items"`
		Total     string `json:"total"`
		ItemCount int    `json:"item_count"`
	}
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	require.Len(t, response.Items, 1)
	assert.Equal(t, "29.99", response.Items[0].UnitPrice)
	assert.Equal(t, "59.98", response.Total)
	assert.Equal(t, 2, response.ItemCount)
}

func TestGetCart_IssuesSessionCookie(t *testing.T) {
	mock := &CartServiceMock{snapshot: &domain.CartSnapshot{Items: []domain.CartSnapshotItem{}}}
	handler := newTestCartHandler(mock)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, httptest.NewRequest(http.MethodGet, "/checkout/cart", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	cookie := sessionCookie(recorder)
	require.NotNil(t, cookie)
	_, err := uuid.Parse(cookie.Value)
	assert.NoError(t, err)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, cookie.Value, mock.sessionID)
}

func TestGetCart_ReplacesGarbageCookie(t *testing.T) {
	mock := &CartServiceMock{snapshot: &domain.CartSnapshot{}}
	handler := newTestCartHandler(mock)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, withSession(httptest.NewRequest(http.MethodGet, "/", nil), "not-a-uuid"))

	cookie := sessionCookie(recorder)
	require.NotNil(t, cookie)
	assert.NotEqual(t, "not-a-uuid", cookie.Value)
}

func TestGetCart_ServiceError(t *testing.T) {
	mock := &CartServiceMock{err: fmt.Errorf("load cart products: %w", assert.AnError)}
	handler := newTestCartHandler(mock)

	recorder := httptest.NewRecorder()
	handler.GetCart(recorder, withSession(httptest.NewRequest(http.MethodGet, "/", nil), testSession))

	require.Equal(t, http.StatusInternalServerError, recorder.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.False(t, response.Success)
	assert.Equal(t, "internal_error", response.Code)
	assert.NotContains(t, response.Error, "assert.AnError", "internal details stay in the log")
}

func TestAddItem(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "success", body: `{"product_id":1,"quantity":2}`, wantStatus: http.StatusOK},
		{name: "invalid json", body: `{"product_id":`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "empty body", body: ``, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "zero quantity", body: `{"product_id":1,"quantity":0}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "missing product", body: `{"quantity":1}`, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "insufficient stock", body: `{"product_id":1,"quantity":50}`, serviceErr: domain.ErrInsufficientStock, wantStatus: http.StatusBadRequest, wantCode: "insufficient_stock"},
		{name: "unknown product", body: `{"product_id":99,"quantity":1}`, serviceErr: domain.ErrProductNotFound, wantStatus: http.StatusBadRequest, wantCode: "product_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &CartServiceMock{err: tt.serviceErr}
			handler := newTestCartHandler(mock)

			recorder := httptest.NewRecorder()
			request := withSession(httptest.NewRequest(http.MethodPost, "/checkout/cart/add", strings.NewReader(tt.body)), testSession)
			handler.AddItem(recorder, request)

			require.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantCode != "" {
				var response ErrorResponse
				require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
				assert.Equal(t, tt.wantCode, response.Code)
				assert.NotEmpty(t, response.Error)
				return
			}

			var response MessageResponse
			require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
			assert.True(t, response.Success)
			assert.Equal(t, "Item added to cart", response.Message)
			assert.Equal(t, int64(1), mock.productID)
			assert.Equal(t, 2, mock.quantity)
		})
	}
}

func TestAddItem_ValidationMessageUsesJSONNames(t *testing.T) {
	handler := newTestCartHandler(&CartServiceMock{})

	recorder := httptest.NewRecorder()
	request := withSession(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"product_id":0,"quantity":0}`)), testSession)
	handler.AddItem(recorder, request)

	var response ErrorResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.Contains(t, response.Error, "product_id must be greater than 0")
	assert.Contains(t, response.Error, "quantity must be at least 1")
}

func TestUpdateQuantity(t *testing.T) {
	tests := []struct {
		name       string
		productID  string
		body       string
		serviceErr error
		wantStatus int
		wantQty    int
	}{
		{name: "set quantity", productID: "3", body: `{"quantity":4}`, wantStatus: http.StatusOK, wantQty: 4},
		{name: "zero removes", productID: "3", body: `{"quantity":0}`, wantStatus: http.StatusOK, wantQty: 0},
		{name: "missing quantity", productID: "3", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "negative quantity", productID: "3", body: `{"quantity":-1}`, wantStatus: http.StatusBadRequest},
		{name: "bad product id", productID: "abc", body: `{"quantity":1}`, wantStatus: http.StatusBadRequest},
		{name: "item not in cart", productID: "3", body: `{"quantity":1}`, serviceErr: domain.ErrItemNotFound, wantStatus: http.StatusBadRequest},
		{name: "no cart", productID: "3", body: `{"quantity":1}`, serviceErr: domain.ErrCartNotFound, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &CartServiceMock{err: tt.serviceErr}
			handler := newTestCartHandler(mock)

			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(tt.body))
			request = withURLParams(withSession(request, testSession), map[string]string{"product_id": tt.productID})
			handler.UpdateQuantity(recorder, request)

			require.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, int64(3), mock.productID)
				assert.Equal(t, tt.wantQty, mock.quantity)
			}
		})
	}
}

func TestRemoveItem(t *testing.T) {
	mock := &CartServiceMock{}
	handler := newTestCartHandler(mock)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodDelete, "/", nil)
	request = withURLParams(withSession(request, testSession), map[string]string{"product_id": "7"})
	handler.RemoveItem(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, int64(7), mock.productID)

	var response MessageResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.Equal(t, "Item removed from cart", response.Message)
}

func TestRemoveItem_InvalidProductID(t *testing.T) {
	handler := newTestCartHandler(&CartServiceMock{})

	recorder := httptest.NewRecorder()
	request := withURLParams(httptest.NewRequest(http.MethodDelete, "/", nil), map[string]string{"product_id": "-2"})
	handler.RemoveItem(recorder, request)

	require.Equal(t, http.StatusBadRequest, recorder.Code)
	var response ErrorResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&response))
	assert.Equal(t, "invalid_product_id", response.Code)
}

func TestClearCart(t *testing.T) {
	mock := &CartServiceMock{}
	handler := newTestCartHandler(mock)

	recorder := httptest.NewRecorder()
	handler.ClearCart(recorder, withSession(httptest.NewRequest(http.MethodDelete, "/", nil), testSession))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, mock.cleared)
	assert.Equal(t, testSession, mock.sessionID)
}
