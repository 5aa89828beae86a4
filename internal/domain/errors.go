package domain

import "errors"

var (
	ErrUnauthorized      = errors.New("no authenticated identity")
	ErrUserCapacity      = errors.New("per-user connection cap reached")
	ErrGlobalCapacity    = errors.New("global connection cap reached")
	ErrRateLimited       = errors.New("message rate limit exceeded")
	ErrPatternUnsafe     = errors.New("pattern rejected by safety guard")
	ErrEvaluationTimeout = errors.New("pattern evaluation budget exceeded")
	ErrUserNotFound      = errors.New("user not found")
	ErrTalkgroupNotFound = errors.New("talkgroup not found")
)
