package middleware

import (
	"crypto/subtle"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/govconnect/channel-gateway/pkg/utils"
)

// InternalAPIKey guards the /internal surface. An empty configured key
// disables the check, which is only sane in local development.
func InternalAPIKey(key string) fiber.Handler {
	if key == "" {
		logrus.Warn("[REST] INTERNAL_API_KEY is empty, internal API is unauthenticated")
		return func(ctx *fiber.Ctx) error {
			return ctx.Next()
		}
	}
	return func(ctx *fiber.Ctx) error {
		provided := ctx.Get("X-Internal-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
			return ctx.Status(fiber.StatusUnauthorized).JSON(utils.ResponseData{
				Status:  fiber.StatusUnauthorized,
				Code:    "AUTH_ERROR",
				Message: "invalid internal api key",
			})
		}
		return ctx.Next()
	}
}

// WebhookAllowlist restricts webhook ingress to the given IPs or CIDRs.
// An empty allowlist admits everyone.
func WebhookAllowlist(entries []string) fiber.Handler {
	var nets []*net.IPNet
	var ips []net.IP
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, cidr, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, cidr)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			ips = append(ips, ip)
		} else {
			logrus.Warnf("[REST] Ignoring invalid allowlist entry %q", entry)
		}
	}

	if len(nets) == 0 && len(ips) == 0 {
		return func(ctx *fiber.Ctx) error {
			return ctx.Next()
		}
	}

	return func(ctx *fiber.Ctx) error {
		remote := net.ParseIP(ctx.IP())
		allowed := false
		if remote != nil {
			for _, ip := range ips {
				if ip.Equal(remote) {
					allowed = true
					break
				}
			}
			if !allowed {
				for _, cidr := range nets {
					if cidr.Contains(remote) {
						allowed = true
						break
					}
				}
			}
		}
		if !allowed {
			logrus.Warnf("[REST] Webhook from disallowed origin %s", ctx.IP())
			return ctx.Status(fiber.StatusForbidden).JSON(utils.ResponseData{
				Status:  fiber.StatusForbidden,
				Code:    "AUTH_ERROR",
				Message: "origin not allowed",
			})
		}
		return ctx.Next()
	}
}
