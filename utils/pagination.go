package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// Pagination reads ?page= and ?size= with sane bounds.
func Pagination(c *fiber.Ctx, defaultSize, maxSize int) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("size", strconv.Itoa(defaultSize)))
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxSize {
		size = defaultSize
	}
	return page, size
}
