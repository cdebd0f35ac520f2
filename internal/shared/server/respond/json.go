package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// JSON writes a JSON response with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

// OK writes a 200 OK JSON response.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}

// Accepted writes a 202 response for work that continues in the background.
// Location points at the resource clients should poll.
func Accepted(c *gin.Context, location string, payload any) {
	if location != "" {
		c.Header("Location", location)
	}
	JSON(c, http.StatusAccepted, payload)
}

// Markdown writes a markdown document body.
func Markdown(c *gin.Context, body string) {
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(body))
}
