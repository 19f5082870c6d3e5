package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/interfaces/http/dto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandleBindError(t *testing.T) {
	type passenger struct {
		FullName string `json:"full_name" binding:"required"`
		Age      int    `json:"age" binding:"min=0,max=120"`
	}

	SetupValidator()
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req passenger
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleBindError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req))
	})

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("field violations use json names", func(t *testing.T) {
		w := post(`{"age": 130}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.NotEmpty(t, resp.Error.RequestID)
		require.Len(t, resp.Error.Details, 2)
		assert.Equal(t, "full_name", resp.Error.Details[0].Field)
		assert.Equal(t, "required", resp.Error.Details[0].Rule)
		assert.Equal(t, "age", resp.Error.Details[1].Field)
		assert.Equal(t, "120", resp.Error.Details[1].Param)
	})

	t.Run("malformed json", func(t *testing.T) {
		w := post(`{"full_name": `)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), dto.ErrCodeInvalidJSON)
	})

	t.Run("valid body", func(t *testing.T) {
		w := post(`{"full_name": "Ana Torres", "age": 34}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
