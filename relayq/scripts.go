package relayq

import "github.com/redis/go-redis/v9"

// The four atomic scripts spec §6 names as the core's external contracts.
// Everything else the core touches (job hash writes, lock take/release,
// terminal moves) lives behind package job; these four are the ones that
// operate across whole collections rather than a single job.

// updateDelaySetScript moves every delayed entry with score <= now into
// wait (or paused, if meta-paused exists) and returns the new minimum
// remaining score, or nil (redis.Nil to the caller) if delayed is now
// empty.
//
// KEYS: 1=delayed 2=wait 3=paused 4=metaPaused
// ARGV: 1=nowMs
var updateDelaySetScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if #ids > 0 then
	redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
	local dest = KEYS[2]
	if redis.call('EXISTS', KEYS[4]) == 1 then
		dest = KEYS[3]
	end
	for i = 1, #ids do
		redis.call('LPUSH', dest, ids[i])
	end
end
local next = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #next == 0 then
	return nil
end
return next[2]
`)

// moveUnlockedJobsToWaitScript scans active for ids whose lock key is
// absent. A job below MaxStalledCount is requeued into wait with its
// stall counter incremented; a job at or above the limit is moved to
// failed with a fixed reason. Returns [failedIds, stalledIds].
//
// KEYS: 1=active 2=wait 3=failed
// ARGV: 1=maxStalledCount 2=lockKeyPrefix 3=lockKeySuffix 4=failedReason 5=finishedOnMs
var moveUnlockedJobsToWaitScript = redis.NewScript(`
local active = redis.call('LRANGE', KEYS[1], 0, -1)
local maxStalled = tonumber(ARGV[1])
local failedIds = {}
local stalledIds = {}
for i = 1, #active do
	local id = active[i]
	local lockKey = ARGV[2] .. id .. ARGV[3]
	if redis.call('EXISTS', lockKey) == 0 then
		local jobKey = ARGV[2] .. id
		local count = tonumber(redis.call('HGET', jobKey, 'stalledCounter') or '0')
		redis.call('LREM', KEYS[1], 0, id)
		if count >= maxStalled then
			redis.call('SADD', KEYS[3], id)
			redis.call('HSET', jobKey, 'failedReason', ARGV[4], 'finishedOn', ARGV[5])
			table.insert(failedIds, id)
		else
			redis.call('HINCRBY', jobKey, 'stalledCounter', 1)
			redis.call('LPUSH', KEYS[2], id)
			table.insert(stalledIds, id)
		end
	end
end
return {failedIds, stalledIds}
`)

// cleanJobsInSetScript removes up to limit members of the given terminal
// set whose job hash's finishedOn is older than olderThan, deleting the
// job hash along with the set membership. Returns the removed ids.
//
// KEYS: 1=targetSet 2=jobKeyPrefix
// ARGV: 1=olderThanMs 2=limit
var cleanJobsInSetScript = redis.NewScript(`
local ids = redis.call('SMEMBERS', KEYS[1])
local removed = {}
local limit = tonumber(ARGV[2])
for i = 1, #ids do
	if limit > 0 and #removed >= limit then
		break
	end
	local id = ids[i]
	local finishedOn = tonumber(redis.call('HGET', KEYS[2] .. id, 'finishedOn') or '0')
	if finishedOn > 0 and finishedOn < tonumber(ARGV[1]) then
		redis.call('SREM', KEYS[1], id)
		redis.call('DEL', KEYS[2] .. id)
		table.insert(removed, id)
	end
end
return removed
`)

// pauseResumeGlobalScript renames src to dst if src exists, sets or
// deletes metaKey, and publishes mode on channel — an atomic barrier so
// no consumer observes wait entries after a pause commits.
//
// KEYS: 1=src 2=dst 3=metaKey 4=channel
// ARGV: 1=mode ("paused"|"resumed")
var pauseResumeGlobalScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('RENAME', KEYS[1], KEYS[2])
end
if ARGV[1] == 'paused' then
	redis.call('SET', KEYS[3], '1')
else
	redis.call('DEL', KEYS[3])
end
redis.call('PUBLISH', KEYS[4], ARGV[1])
return 1
`)
