package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPredictDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/predict" {
			t.Errorf("path = %s, want /api/predict", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","prediction":"up","confidence":0.82,"upProbability":0.8}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, true)
	p := c.Predict(context.Background(), "BTCUSDT", nil)

	if p.Prediction != DirectionUp || p.Confidence != 0.82 {
		t.Errorf("prediction = %+v, want up@0.82", p)
	}
	if !p.Up(0.70) {
		t.Error("Up(0.70) should pass at confidence 0.82")
	}
	if p.Up(0.90) {
		t.Error("Up(0.90) should fail at confidence 0.82")
	}
}

func TestPredictFallsBackToNeutral(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"garbage body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := NewClient(srv.URL, true)
			p := c.Predict(context.Background(), "ETHUSDT", nil)

			if p.Prediction != DirectionSideways || p.Confidence != 0 {
				t.Errorf("fallback = %+v, want neutral sideways", p)
			}
			if p.Down(0.01) || p.Up(0.01) {
				t.Error("neutral prediction must not gate or veto")
			}
		})
	}

	t.Run("unreachable host", func(t *testing.T) {
		c := NewClient("http://127.0.0.1:1", true)
		p := c.Predict(context.Background(), "ETHUSDT", nil)
		if p.Prediction != DirectionSideways {
			t.Errorf("fallback = %+v, want neutral sideways", p)
		}
	})
}

func TestDisabledClientIsNeutral(t *testing.T) {
	c := NewClient("http://example.invalid", false)
	p := c.Predict(context.Background(), "BTCUSDT", nil)
	if p.Prediction != DirectionSideways {
		t.Errorf("disabled client = %+v, want neutral", p)
	}
}
