package pagination

import (
	"strconv"
	"strings"

	"github.com/briefly-app/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	DefaultPage = 1
	DefaultSize = 10
	MaxSize     = 100
	maxSearch   = 200
)

// Query holds parsed pagination and search parameters.
type Query struct {
	Page   int
	Size   int
	Search string
}

// FromContext reads ?page=, ?size= (or ?limit=) and ?q= (or ?searchTerm=).
func FromContext(c *gin.Context) Query {
	size := c.Query("size")
	if size == "" {
		size = c.Query("limit")
	}
	search := c.Query("q")
	if search == "" {
		search = c.Query("searchTerm")
	}
	return Normalize(Query{
		Page:   parseIntOr(c.Query("page"), DefaultPage),
		Size:   parseIntOr(size, DefaultSize),
		Search: search,
	})
}

// Normalize clamps page and size and trims the search term.
func Normalize(q Query) Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Size < 1 {
		q.Size = DefaultSize
	}
	if q.Size > MaxSize {
		q.Size = MaxSize
	}
	q.Search = strings.TrimSpace(q.Search)
	if r := []rune(q.Search); len(r) > maxSearch {
		q.Search = string(r[:maxSearch])
	}
	return q
}

// Offset is the number of rows skipped before the current page.
func (q Query) Offset() int { return (q.Page - 1) * q.Size }

// Meta builds response metadata for total matching rows.
func (q Query) Meta(total int64) response.Pagination {
	totalPage := 0
	if q.Size > 0 {
		totalPage = int((total + int64(q.Size) - 1) / int64(q.Size))
	}
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}
}

// Paginate counts db, then loads the requested page into dest.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (int64, error) {
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return 0, err
	}
	if total == 0 {
		*dest = []T{}
		return 0, nil
	}
	if err := db.Offset(q.Offset()).Limit(q.Size).Find(dest).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// LikeEscape is the escape character LikePattern uses. Queries must add
// "ESCAPE '!'" after the LIKE operand.
const LikeEscape = "!"

var likeReplacer = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// LikePattern escapes LIKE wildcards in s and wraps it in %.
func LikePattern(s string) string {
	return "%" + likeReplacer.Replace(s) + "%"
}

func parseIntOr(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return v
}
