package middleware

import (
	"medipay/internal/utils"
	"medipay/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// OperatorKeyHeader carries the API key an operator signs its webhooks with.
const OperatorKeyHeader = "X-Operator-Key"

// OperatorAuth checks the X-Operator-Key header against the bcrypt hash
// configured for the :operator route parameter.
func OperatorAuth(keyHashes map[string]string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		operator := c.Params("operator")
		hash, ok := keyHashes[operator]
		if !ok {
			log.Warn().Str("operator", operator).Msg("webhook from unconfigured operator")
			return response.Unauthorized(c)
		}

		key := c.Get(OperatorKeyHeader)
		if key == "" || !utils.CompareSecret(hash, key) {
			log.Warn().Str("operator", operator).Str("ip", c.IP()).Msg("invalid operator key")
			return response.Unauthorized(c)
		}
		return c.Next()
	}
}
