package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestFromContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		url  string
		want Query
	}{
		{url: "/", want: Query{Page: 1, Size: 10}},
		{url: "/?page=3&size=25&q=+golang+", want: Query{Page: 3, Size: 25, Search: "golang"}},
		{url: "/?page=0&size=500", want: Query{Page: 1, Size: MaxSize}},
		{url: "/?page=x&limit=5&searchTerm=cache", want: Query{Page: 1, Size: 5, Search: "cache"}},
	}
	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", tt.url, nil)
		assert.Equal(t, tt.want, FromContext(c), tt.url)
	}
}

func TestMeta(t *testing.T) {
	m := Query{Page: 2, Size: 10}.Meta(25)
	assert.Equal(t, int64(25), m.Total)
	assert.Equal(t, 3, m.TotalPage)
	assert.True(t, m.HasNextPage)
	assert.Equal(t, 10, Query{Page: 2, Size: 10}.Offset())

	m = Query{Page: 1, Size: 10}.Meta(0)
	assert.Zero(t, m.TotalPage)
	assert.False(t, m.HasNextPage)
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%50!% off!_now!!%", LikePattern("50% off_now!"))
}
