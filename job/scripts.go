package job

import "github.com/redis/go-redis/v9"

// These scripts implement the collaborator surface spec.md scoped out of
// the core (create/takeLock/releaseLock/moveToCompleted/moveToFailed/
// retry). They are not part of the core's documented §6 script contracts;
// they exist so the core has something real to call when this module is
// used standalone. Each is a *redis.Script so go-redis caches its SHA and
// falls back to EVAL on a NOSCRIPT/cache miss.

// addScript atomically allocates the next job id, writes its hash, and
// routes it into delayed (scored by release timestamp) or into
// wait/paused (respecting meta-paused). A job with priority > 0 is also
// added to the priority set and inserted into the list behind every
// already-queued job of equal or lower score (consumption is a right-pop),
// ahead of all unprioritized jobs.
//
// KEYS: 1=idCounter 2=wait 3=paused 4=metaPaused 5=delayed 6=priority 7=delayedChannel
// ARGV: 1=base("prefix:queue") 2=dataJSON 3=optsJSON 4=nowMs 5=delayMs 6=priority
var addScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[1])
local jobKey = ARGV[1] .. ':' .. id
redis.call('HSET', jobKey,
	'id', id,
	'data', ARGV[2],
	'opts', ARGV[3],
	'progress', 0,
	'delay', ARGV[5],
	'timestamp', ARGV[4],
	'attemptsMade', 0,
	'stalledCounter', 0,
	'failedReason', '',
	'stacktrace', '',
	'returnvalue', '',
	'finishedOn', '',
	'processedOn', '')

local delayMs = tonumber(ARGV[5])
if delayMs and delayMs > 0 then
	local releaseAt = tonumber(ARGV[4]) + delayMs
	redis.call('ZADD', KEYS[5], releaseAt, id)
	local min = redis.call('ZRANGE', KEYS[5], 0, 0, 'WITHSCORES')
	if min[2] == tostring(releaseAt) then
		redis.call('PUBLISH', KEYS[7], releaseAt)
	end
else
	local target = KEYS[2]
	if redis.call('EXISTS', KEYS[4]) == 1 then
		target = KEYS[3]
	end
	local pr = tonumber(ARGV[6])
	if pr and pr > 0 then
		redis.call('ZADD', KEYS[6], pr, id)
		local count = redis.call('ZCOUNT', KEYS[6], 0, pr)
		local pivot = redis.call('LINDEX', target, redis.call('LLEN', target) - (count - 1))
		if pivot then
			redis.call('LINSERT', target, 'BEFORE', pivot, id)
		else
			redis.call('RPUSH', target, id)
		end
	else
		redis.call('LPUSH', target, id)
	end
end
return id
`)

// takeLockScript acquires or renews a job's lock.
// Fresh acquisition (ARGV[4]=="0"): optionally requires the job id still
// be a member of active, then SET NX PX.
// Renewal (ARGV[4]=="1"): extends the TTL only if the stored value still
// equals our token, so a worker can never renew a lock it has lost.
//
// KEYS: 1=lockKey 2=activeKey
// ARGV: 1=token 2=ttlMs 3=jobID 4=renew("0"|"1") 5=ensureActive("0"|"1")
var takeLockScript = redis.NewScript(`
if ARGV[4] == '1' then
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
		return 1
	end
	return 0
end
if ARGV[5] == '1' then
	if redis.call('LPOS', KEYS[2], ARGV[3]) == false then
		return 0
	end
end
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
if ok then
	return 1
end
return 0
`)

// releaseLockScript deletes the lock key only if it still names our token.
//
// KEYS: 1=lockKey
// ARGV: 1=token
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// moveToCompletedScript removes a job from active, records its return
// value, and adds it to completed. If dropHash is set the job hash is
// deleted immediately instead of retained (see Options.RemoveOnComplete).
//
// KEYS: 1=active 2=jobKey 3=completed 4=lockKey
// ARGV: 1=jobID 2=returnValueJSON 3=finishedOnMs 4=token 5=dropHash("0"|"1")
var moveToCompletedScript = redis.NewScript(`
redis.call('LREM', KEYS[1], 0, ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
if redis.call('GET', KEYS[4]) == ARGV[4] then
	redis.call('DEL', KEYS[4])
end
if ARGV[5] == '1' then
	redis.call('DEL', KEYS[2])
else
	redis.call('HSET', KEYS[2], 'returnvalue', ARGV[2], 'finishedOn', ARGV[3], 'progress', 100)
end
return 1
`)

// moveToFailedScript removes a job from active, records its failure
// reason, and adds it to failed. Symmetric with moveToCompletedScript.
//
// KEYS: 1=active 2=jobKey 3=failed 4=lockKey
// ARGV: 1=jobID 2=failedReason 3=stacktrace 4=finishedOnMs 5=token 6=dropHash("0"|"1")
var moveToFailedScript = redis.NewScript(`
redis.call('LREM', KEYS[1], 0, ARGV[1])
redis.call('SADD', KEYS[3], ARGV[1])
if redis.call('GET', KEYS[4]) == ARGV[5] then
	redis.call('DEL', KEYS[4])
end
if ARGV[6] == '1' then
	redis.call('DEL', KEYS[2])
else
	redis.call('HSET', KEYS[2], 'failedReason', ARGV[2], 'stacktrace', ARGV[3], 'finishedOn', ARGV[4])
end
return 1
`)

// retryScript moves a failed job back into wait, resetting its stall
// counter and failure bookkeeping, and increments attemptsMade.
//
// KEYS: 1=failed 2=wait 3=jobKey
// ARGV: 1=jobID
var retryScript = redis.NewScript(`
redis.call('SREM', KEYS[1], ARGV[1])
redis.call('LPUSH', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[3], 'stalledCounter', 0, 'failedReason', '', 'stacktrace', '')
redis.call('HINCRBY', KEYS[3], 'attemptsMade', 1)
return 1
`)
