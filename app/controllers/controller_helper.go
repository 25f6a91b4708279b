package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const defaultPageSize = 25
const maxPageSize = 100

// parsePagination reads page/limit query params with clamped defaults.
func parsePagination(c *fiber.Ctx) (offset, limit, page int) {
	page = c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit = c.QueryInt("limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return (page - 1) * limit, limit, page
}

// requestHeaders flattens the request headers for audit persistence.
func requestHeaders(c *fiber.Ctx) map[string]string {
	headers := map[string]string{}
	for key, values := range c.GetReqHeaders() {
		headers[key] = strings.Join(values, ", ")
	}
	return headers
}
