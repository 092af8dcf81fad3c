package guard

import (
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"
)

const warningText = "⚠️ Please stop spamming, or you will be blocked for a while."

// Middleware admits every update through g before it reaches a handler. Blocked
// updates are dropped without a reply; the warning and block notices are sent
// here, not by the handlers.
func (g *Guard) Middleware() tele.MiddlewareFunc {
	return g.middleware(time.Now)
}

func (g *Guard) middleware(now func() time.Time) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			userID := SenderID(c)
			d := g.Admit(userID, now())

			if d.Warn {
				g.notice(c, userID, warningText)
			}
			if d.BlockFor > 0 {
				g.notice(c, userID, blockText(d.BlockFor))
			}
			if !d.Forward() {
				return nil
			}
			return next(c)
		}
	}
}

func (g *Guard) notice(c tele.Context, userID, text string) {
	if err := c.Send(text); err != nil {
		g.logger.Warn().Err(err).Str("user_id", userID).Msg("failed to send guard notice")
	}
}

// SenderID is the identity used for admission and for ownership of user data.
// Updates without a sender, or with a zero id, are anonymous and yield "".
func SenderID(c tele.Context) string {
	if u := c.Sender(); u != nil && u.ID != 0 {
		return strconv.FormatInt(u.ID, 10)
	}
	return ""
}

func blockText(d time.Duration) string {
	return fmt.Sprintf("🚫 You have been blocked for spamming for %d minutes.", int(d/time.Minute))
}
