package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// reserveScript admits ARGV[1] sends when the day key stays within ARGV[2].
// The key expires ARGV[3] seconds after its first increment. Returns the new
// count, or -1 when the reservation is refused.
var reserveScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
local n = tonumber(ARGV[1])
if cur + n > tonumber(ARGV[2]) then
	return -1
end
local v = redis.call('INCRBY', KEYS[1], n)
if v == n then
	redis.call('EXPIRE', KEYS[1], ARGV[3])
end
return v
`)

// Redis keeps one key per calendar day, so several server instances share
// the same quota.
type Redis struct {
	rdb    *redis.Client
	prefix string
	limit  int
	loc    *time.Location
	now    func() time.Time
}

func NewRedis(rdb *redis.Client, prefix string, limit int, loc *time.Location) *Redis {
	if loc == nil {
		loc = time.Local
	}
	return &Redis{rdb: rdb, prefix: prefix, limit: limit, loc: loc, now: time.Now}
}

func (r *Redis) Limit() int { return r.limit }

func (r *Redis) today() (string, time.Time) {
	now := r.now().In(r.loc)
	return now.Format(dateLayout), now
}

func (r *Redis) key(date string) string {
	return fmt.Sprintf("%s:%s", r.prefix, date)
}

// ttl keeps the key a day past midnight so late readers still see it.
func ttl(now time.Time) time.Duration {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return midnight.Sub(now) + 24*time.Hour
}

func (r *Redis) Reserve(ctx context.Context, n int) (bool, error) {
	if n <= 0 {
		return true, nil
	}
	date, now := r.today()
	v, err := reserveScript.Run(ctx, r.rdb, []string{r.key(date)},
		n, r.limit, int64(ttl(now)/time.Second)).Int64()
	if err != nil {
		return false, fmt.Errorf("quota reserve: %w", err)
	}
	return v >= 0, nil
}

func (r *Redis) Usage(ctx context.Context) (Usage, error) {
	date, _ := r.today()
	sent, err := r.rdb.Get(ctx, r.key(date)).Int()
	if errors.Is(err, redis.Nil) {
		return newUsage(date, 0, r.limit), nil
	}
	if err != nil {
		return Usage{}, fmt.Errorf("quota usage: %w", err)
	}
	return newUsage(date, sent, r.limit), nil
}
