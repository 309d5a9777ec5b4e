package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gunvolt24/amqp_receiver/pkg/httpx"
	"github.com/gin-gonic/gin"
)

// Утилита для создания *gin.Context с query-строкой
func ctxWithQuery(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/?"+rawQuery, http.NoBody)
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c
}

func TestClampInt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		v, min, max int
		want        int
	}{
		{"below_min", 0, 1, 10, 1},
		{"above_max", 11, 1, 10, 10},
		{"inside", 5, 1, 10, 5},
		{"equal_min", 1, 1, 10, 1},
		{"equal_max", 10, 1, 10, 10},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := httpx.ClampInt(tt.v, tt.min, tt.max); got != tt.want {
				t.Fatalf("ClampInt(%d,%d,%d) = %d, want %d", tt.v, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

func TestParsePage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		rawQuery     string
		defaultLimit int
		maxLimit     int
		want         httpx.Page
	}{
		{"defaults", "", 20, 50, httpx.Page{Limit: 20}},
		{"default_above_max", "", 100, 50, httpx.Page{Limit: 50}},
		{"default_zero", "", 0, 50, httpx.Page{Limit: 1}},

		{"ok_both", "limit=25&offset=10", 20, 50, httpx.Page{Limit: 25, Offset: 10}},
		{"ok_only_offset", "offset=7", 20, 50, httpx.Page{Limit: 20, Offset: 7}},

		// клампинг limit
		{"limit_zero_clamped", "limit=0", 20, 50, httpx.Page{Limit: 1}},
		{"limit_above_max", "limit=999", 20, 50, httpx.Page{Limit: 50}},

		// нечисловые и отрицательные значения
		{"limit_non_int", "limit=foo", 20, 50, httpx.Page{Limit: 20}},
		{"offset_non_int", "offset=bar", 20, 50, httpx.Page{Limit: 20}},
		{"offset_negative", "limit=10&offset=-3", 20, 50, httpx.Page{Limit: 10}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := httpx.ParsePage(ctxWithQuery(tt.rawQuery), tt.defaultLimit, tt.maxLimit)
			if got != tt.want {
				t.Fatalf("got %+v, want %+v (query=%q)", got, tt.want, tt.rawQuery)
			}
		})
	}
}
