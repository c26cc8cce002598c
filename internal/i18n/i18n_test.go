package i18n

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestResolveLocale(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		url    string
		header map[string]string
		want   string
	}{
		{url: "/x", want: LocaleZhCN},
		{url: "/x?lang=en", want: LocaleEnUS},
		{url: "/x", header: map[string]string{"X-Locale": "en-GB"}, want: LocaleEnUS},
		{url: "/x", header: map[string]string{"Accept-Language": "fr-FR;q=0.9, en-US;q=0.8"}, want: LocaleEnUS},
		{url: "/x?lang=zh-TW", header: map[string]string{"Accept-Language": "en"}, want: LocaleZhCN},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, tc.url, nil)
		for k, v := range tc.header {
			c.Request.Header.Set(k, v)
		}
		if got := ResolveLocale(c); got != tc.want {
			t.Fatalf("ResolveLocale(%s, %v) = %s, want %s", tc.url, tc.header, got, tc.want)
		}
	}
}

func TestTranslateFallbacks(t *testing.T) {
	if got := T(LocaleEnUS, "error.not_found"); got != "Resource not found" {
		t.Fatalf("unexpected en message: %s", got)
	}
	if got := T("ja-JP", "error.not_found"); got != zhCN["error.not_found"] {
		t.Fatalf("unknown locale should fall back to default: %s", got)
	}
	if got := T(LocaleEnUS, "error.unknown_key"); got != "error.unknown_key" {
		t.Fatalf("missing key should echo key: %s", got)
	}
	if got := Sprintf(LocaleEnUS, "error.rate_limited", 12); got != "Too many requests, retry in 12 seconds" {
		t.Fatalf("unexpected formatted message: %s", got)
	}
}

func TestTablesHaveSameKeys(t *testing.T) {
	for key := range zhCN {
		if _, ok := enUS[key]; !ok {
			t.Fatalf("en-US missing key %s", key)
		}
	}
	for key := range enUS {
		if _, ok := zhCN[key]; !ok {
			t.Fatalf("zh-CN missing key %s", key)
		}
	}
}
