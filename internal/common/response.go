package common

import "github.com/gin-gonic/gin"

// Response envelope shared by all endpoints.
// code 0 = success; non-zero codes group by family:
// 1xxxx validation, 2xxxx internal dependency, 4xxxx auth/not-found, 5xxxx internal.
func OK(c *gin.Context, data any) {
	c.JSON(200, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Created(c *gin.Context, data any) {
	c.JSON(201, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}
