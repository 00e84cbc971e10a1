package redis

import (
	"fmt"
	"time"
)

const ns = "seatswap:v1"

// KeyTopEvents is the leaderboard for the calendar month containing t.
func KeyTopEvents(t time.Time) string {
	return fmt.Sprintf("%s:leaderboard:top_events:%s", ns, t.Format("2006-01"))
}

// KeyTeamRanks holds per-team trade counts for orders requested in the
// calendar month containing t.
func KeyTeamRanks(t time.Time) string {
	return fmt.Sprintf("%s:leaderboard:teams:%s", ns, t.Format("2006-01"))
}

func KeyTopEventPrices(t time.Time) string {
	return fmt.Sprintf("%s:leaderboard:event_prices:%s", ns, t.Format("2006-01"))
}

func KeyTradeSummary() string {
	return ns + ":stats:summary"
}

func KeyPayClaim(orderID int64) string {
	return fmt.Sprintf("%s:claim:pay:%d", ns, orderID)
}

func KeyIdemPay(orderID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:pay:%d:%s", ns, orderID, idemKey)
}

func KeyRateLimitPrefix(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}
