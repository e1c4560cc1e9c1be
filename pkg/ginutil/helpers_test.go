package ginutil

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		query       string
		page, limit int
	}{
		{"", 1, DefaultPerPage},
		{"?page=3&per_page=50", 3, 50},
		{"?page=-1&per_page=1000", 1, DefaultPerPage},
		{"?page=abc&per_page=0", 1, DefaultPerPage},
	}
	for _, tc := range cases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/ledger"+tc.query, nil)
		page, perPage := Pagination(c)
		assert.Equal(t, tc.page, page, tc.query)
		assert.Equal(t, tc.limit, perPage, tc.query)
	}
}
