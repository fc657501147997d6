package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func TestOKWrapsSlices(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	OK(c, []string{"a"})

	var body map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"a"}, body["data"])
}

func TestFailEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Fail(c, http.StatusPaymentRequired, "insufficient_credits", "out of credits")

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.True(t, c.IsAborted())
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["ok"])
	assert.EqualValues(t, 402, body["code"])
	assert.Equal(t, "insufficient_credits", body["kind"])
	assert.Equal(t, "out of credits", body["message"])
}
