package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// NoStore keeps responses out of every cache. Used for anything that can
// carry patient data or session state.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}

// StaticCache lets browsers keep embedded assets for maxAge seconds.
func StaticCache(maxAge int) gin.HandlerFunc {
	value := "public, max-age=" + strconv.Itoa(maxAge)
	return func(c *gin.Context) {
		c.Header("Cache-Control", value)
		c.Next()
	}
}
