package router

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyByIPAndJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/coupon.claim", strings.NewReader(`{"infId":" Inf-42 "}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.RemoteAddr = "1.2.3.4:5678"

	key := KeyByIPAndJSONField("infId")(c)
	if key != "inf-42|1.2.3.4" {
		t.Fatalf("key want inf-42|1.2.3.4 got %s", key)
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		t.Fatalf("read body after key extraction failed: %v", err)
	}
	if !strings.Contains(string(body), "Inf-42") {
		t.Fatalf("request body should be restored after reading field")
	}
}

func TestKeyByIPAndNumericJSONField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/coupon.claim", strings.NewReader(`{"offerId":3,"infId":301}`))
	c.Request.RemoteAddr = "1.2.3.4:5678"
	if key := KeyByIPAndJSONField("infId")(c); key != "301|1.2.3.4" {
		t.Fatalf("key want 301|1.2.3.4 got %s", key)
	}
}

func TestKeyByParamAndIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	var got string
	r.POST("/redemption.webhook/:provider", func(c *gin.Context) {
		got = KeyByParamAndIP("provider")(c)
	})
	req := httptest.NewRequest(http.MethodPost, "/redemption.webhook/Square", nil)
	req.RemoteAddr = "5.6.7.8:1234"
	r.ServeHTTP(httptest.NewRecorder(), req)
	if got != "square|5.6.7.8" {
		t.Fatalf("key want square|5.6.7.8 got %s", got)
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyByIP))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("expected handler response body, got %s", w.Body.String())
	}
}

func TestToInt64(t *testing.T) {
	cases := []struct {
		name  string
		input interface{}
		want  int64
		ok    bool
	}{
		{name: "int64", input: int64(10), want: 10, ok: true},
		{name: "int", input: int(11), want: 11, ok: true},
		{name: "uint8", input: uint8(12), want: 12, ok: true},
		{name: "float64", input: float64(13.9), want: 13, ok: true},
		{name: "string", input: "bad", want: 0, ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := toInt64(tc.input)
			if ok != tc.ok {
				t.Fatalf("ok want %v got %v", tc.ok, ok)
			}
			if got != tc.want {
				t.Fatalf("value want %d got %d", tc.want, got)
			}
		})
	}
}
