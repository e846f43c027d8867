package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"buildex/backoffice/internal/captcha"
	"buildex/backoffice/internal/config"
)

const (
	// ContextKeyIsHumanVerified holds the key for captcha status in Gin context.
	ContextKeyIsHumanVerified = "isHumanVerified"
)

// CaptchaMiddleware handles Cloudflare Turnstile verification (X-C-V) and token (X-C-T) checks.
// It never rejects a request; the rate limiter reads the result.
func CaptchaMiddleware(cfg *config.Config, verifier captcha.ITurnstileVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		fingerprint := c.GetHeader("X-BFP")
		spaSession := c.GetHeader("X-SPA")
		humanToken := c.GetHeader("X-C-T")
		challenge := c.GetHeader("X-C-V")

		isHuman := humanToken != "" && verifier.ValidateHumanToken(humanToken, clientIP, fingerprint, spaSession)

		if !isHuman && challenge != "" {
			verified, err := verifier.Verify(c.Request.Context(), challenge, clientIP)
			switch {
			case err != nil:
				logger.Warn("Turnstile verification error", zap.String("ip", clientIP), zap.Error(err))
			case verified:
				isHuman = true
				token, err := verifier.GenerateHumanToken(clientIP, fingerprint, spaSession, cfg.CaptchaTokenTTL)
				if err != nil {
					logger.Error("Failed to issue X-C-T token", zap.Error(err))
				} else {
					c.Header("X-C-T", token)
				}
			}
		}

		c.Set(ContextKeyIsHumanVerified, isHuman)
		c.Next()
	}
}
