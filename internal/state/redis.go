package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ringerhq/ringer/pkg/crawlmodel"
)

// addURLsScript performs the test-and-insert against the visited set for
// every (score, url) pair in one atomic round-trip, preserving I1 (frontier
// ∩ visited = ∅) under concurrent callers.
var addURLsScript = redis.NewScript(`
local frontier_key = KEYS[1]
local visited_key = KEYS[2]
for i = 1, #ARGV, 2 do
	local score = ARGV[i]
	local url = ARGV[i + 1]
	if redis.call("SISMEMBER", visited_key, url) == 0 then
		redis.call("ZADD", frontier_key, "NX", score, url)
	end
end
return redis.status_reply("OK")
`)

// popNextURLScript pops the highest-scoring frontier member and marks it
// visited as a single atomic act.
var popNextURLScript = redis.NewScript(`
local frontier_key = KEYS[1]
local visited_key = KEYS[2]
local popped = redis.call("ZPOPMAX", frontier_key)
if #popped == 0 then
	return false
end
local url = popped[1]
redis.call("SADD", visited_key, url)
return url
`)

// RedisStore is the external/sorted-set backed Store implementation. Each
// crawl owns five keys under "<prefix>:crawl:<id>:<suffix>":
// exists (existence marker holding the JSON-encoded spec),
// frontier (sorted set, member=url score=priority), visited (set),
// states (list of JSON-encoded RunState), counters (hash).
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an already-connected Redis client.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "ringer"
	}
	return &RedisStore{client: client, prefix: keyPrefix}
}

func (r *RedisStore) key(id, suffix string) string {
	return fmt.Sprintf("%s:crawl:%s:%s", r.prefix, id, suffix)
}

func (r *RedisStore) existsKey(id string) string {
	// A dedicated existence marker: frontier/visited/states/counters keys
	// all vanish once empty, so none of them alone proves the crawl exists.
	return r.key(id, "exists")
}

func (r *RedisStore) Create(ctx context.Context, id string, spec crawlmodel.CrawlSpec) error {
	exists, err := r.client.Exists(ctx, r.existsKey(id)).Result()
	if err != nil {
		return fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	if exists == 1 {
		return fmt.Errorf("crawl %q: %w", id, crawlmodel.ErrAlreadyExists)
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return fmt.Errorf("state store: marshal spec: %w", err)
	}
	pipe := r.client.Pipeline()
	pipe.Set(ctx, r.existsKey(id), specJSON, 0)
	pipe.HSet(ctx, r.key(id, "counters"), map[string]any{"crawled": 0, "processed": 0, "errors": 0})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	exists, err := r.client.Exists(ctx, r.existsKey(id)).Result()
	if err != nil {
		return fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	if exists == 0 {
		log.Warn().Str("crawl_id", id).Msg("delete: crawl state does not exist")
		return nil
	}
	pipe := r.client.Pipeline()
	pipe.Del(ctx,
		r.existsKey(id),
		r.key(id, "frontier"),
		r.key(id, "visited"),
		r.key(id, "states"),
		r.key(id, "counters"),
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisStore) requireExists(ctx context.Context, id string) error {
	exists, err := r.client.Exists(ctx, r.existsKey(id)).Result()
	if err != nil {
		return fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	if exists == 0 {
		return fmt.Errorf("crawl %q: %w", id, crawlmodel.ErrNotFound)
	}
	return nil
}

func (r *RedisStore) AddState(ctx context.Context, id string, runState crawlmodel.RunStateEnum) error {
	if err := r.requireExists(ctx, id); err != nil {
		return err
	}
	payload, err := json.Marshal(crawlmodel.NewRunState(runState))
	if err != nil {
		return fmt.Errorf("state store: marshal run state: %w", err)
	}
	if err := r.client.RPush(ctx, r.key(id, "states"), payload).Err(); err != nil {
		return fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisStore) CurrentState(ctx context.Context, id string) (crawlmodel.RunStateEnum, error) {
	if err := r.requireExists(ctx, id); err != nil {
		return "", err
	}
	raw, err := r.client.LIndex(ctx, r.key(id, "states"), -1).Result()
	if err == redis.Nil {
		return crawlmodel.StateCreated, nil
	}
	if err != nil {
		return "", fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	var rs crawlmodel.RunState
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return "", fmt.Errorf("state store: decode run state: %w", err)
	}
	return rs.State, nil
}

func (r *RedisStore) StateHistory(ctx context.Context, id string) ([]crawlmodel.RunState, error) {
	if err := r.requireExists(ctx, id); err != nil {
		return nil, err
	}
	raws, err := r.client.LRange(ctx, r.key(id, "states"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	history := make([]crawlmodel.RunState, 0, len(raws))
	for _, raw := range raws {
		var rs crawlmodel.RunState
		if err := json.Unmarshal([]byte(raw), &rs); err != nil {
			return nil, fmt.Errorf("state store: decode run state: %w", err)
		}
		history = append(history, rs)
	}
	return history, nil
}

func (r *RedisStore) AddURLs(ctx context.Context, id string, urls []URLScore) error {
	if err := r.requireExists(ctx, id); err != nil {
		return err
	}
	if len(urls) == 0 {
		return nil
	}
	argv := make([]any, 0, len(urls)*2)
	for _, u := range urls {
		argv = append(argv, strconv.FormatFloat(u.Score, 'f', -1, 64), u.URL)
	}
	keys := []string{r.key(id, "frontier"), r.key(id, "visited")}
	if err := addURLsScript.Run(ctx, r.client, keys, argv...).Err(); err != nil {
		return fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisStore) PopNextURL(ctx context.Context, id string) (string, bool, error) {
	if err := r.requireExists(ctx, id); err != nil {
		return "", false, err
	}
	keys := []string{r.key(id, "frontier"), r.key(id, "visited")}
	res, err := popNextURLScript.Run(ctx, r.client, keys).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	url, ok := res.(string)
	if !ok || url == "" {
		return "", false, nil
	}
	return url, true, nil
}

func (r *RedisStore) IsVisited(ctx context.Context, id string, url string) (bool, error) {
	if err := r.requireExists(ctx, id); err != nil {
		return false, err
	}
	ok, err := r.client.SIsMember(ctx, r.key(id, "visited"), url).Result()
	if err != nil {
		return false, fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	return ok, nil
}

func (r *RedisStore) incCounter(ctx context.Context, id, field string) error {
	if err := r.requireExists(ctx, id); err != nil {
		return err
	}
	if err := r.client.HIncrBy(ctx, r.key(id, "counters"), field, 1).Err(); err != nil {
		return fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	return nil
}

func (r *RedisStore) IncCrawled(ctx context.Context, id string) error   { return r.incCounter(ctx, id, "crawled") }
func (r *RedisStore) IncProcessed(ctx context.Context, id string) error { return r.incCounter(ctx, id, "processed") }
func (r *RedisStore) IncErrors(ctx context.Context, id string) error    { return r.incCounter(ctx, id, "errors") }

func (r *RedisStore) Counters(ctx context.Context, id string) (Counters, error) {
	if err := r.requireExists(ctx, id); err != nil {
		return Counters{}, err
	}
	pipe := r.client.Pipeline()
	countersCmd := pipe.HMGet(ctx, r.key(id, "counters"), "crawled", "processed", "errors")
	sizeCmd := pipe.ZCard(ctx, r.key(id, "frontier"))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Counters{}, fmt.Errorf("state store: %w: %v", crawlmodel.ErrBackendUnavailable, err)
	}
	vals := countersCmd.Val()
	parse := func(v any) int64 {
		s, ok := v.(string)
		if !ok {
			return 0
		}
		n, _ := strconv.ParseInt(s, 10, 64)
		return n
	}
	return Counters{
		Crawled:      parse(vals[0]),
		Processed:    parse(vals[1]),
		Errors:       parse(vals[2]),
		FrontierSize: int(sizeCmd.Val()),
	}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
