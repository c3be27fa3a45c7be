package venue_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JustinMoon-exe/Flashbook/internal/model"
	"github.com/JustinMoon-exe/Flashbook/internal/venue"
)

func orderReq() model.OrderRequest {
	price := decimal.NewFromFloat(100.05)
	return model.OrderRequest{Symbol: "ABC", Side: model.SideBuy, Price: &price, Quantity: 10}
}

func TestSubmitOrder_Accepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/orders" {
			t.Errorf("got %s %s, want POST /api/v1/orders", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		var req model.OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Symbol != "ABC" || req.Side != model.SideBuy || req.Quantity != 10 {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{"order_id": "ord-123"})
	}))
	defer srv.Close()

	c := venue.NewClient(srv.URL + "/api/v1")
	id, err := c.SubmitOrder(context.Background(), orderReq())
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if id != "ord-123" {
		t.Errorf("order id = %q, want ord-123", id)
	}
}

func TestSubmitOrder_RejectedWithDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"detail": "price out of band"})
	}))
	defer srv.Close()

	c := venue.NewClient(srv.URL + "/api/v1")
	if _, err := c.SubmitOrder(context.Background(), orderReq()); err == nil {
		t.Fatal("want error on 422 response")
	}
}

func TestSubmitOrder_MissingOrderID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	c := venue.NewClient(srv.URL + "/api/v1")
	if _, err := c.SubmitOrder(context.Background(), orderReq()); err == nil {
		t.Fatal("want error when order_id is absent")
	}
}

func TestSubmitOrder_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := venue.NewClient(srv.URL + "/api/v1")
	if _, err := c.SubmitOrder(context.Background(), orderReq()); err == nil {
		t.Fatal("want error when the venue is unreachable")
	}
}

func TestSubmitOrder_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := venue.NewClient(srv.URL + "/api/v1")
	if _, err := c.SubmitOrder(ctx, orderReq()); err == nil {
		t.Fatal("want error for cancelled context")
	}
}
