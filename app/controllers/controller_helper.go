package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// clientIP returns the address a webhook was sent from, honoring Cloudflare and
// proxy headers.
func clientIP(c *fiber.Ctx) string {
	if cf := strings.TrimSpace(c.Get("CF-Connecting-IP")); cf != "" {
		return cf
	}
	// X-Forwarded-For can contain a list of IPs, the first one is the original client
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	ip := c.IP()
	// IPv4-mapped IPv6 (::ffff:192.168.1.1)
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}
