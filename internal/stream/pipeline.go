package stream

import (
	"bytes"
	"log/slog"

	"github.com/goccy/go-json"
)

// TagMatcher decides whether a reply tag belongs to a subscription tag.
type TagMatcher func(subscribeTag, replyTag string) bool

// replyTagMatches is the aggregator's convention: a subscribe tag is the reply
// tag plus a trailing "s" ("aobus" subscribes, "aobu" replies).
func replyTagMatches(subscribeTag, replyTag string) bool {
	return subscribeTag == replyTag+"s"
}

// PluralReplyTag accepts replies tagged with the subscribe tag plus "s".
func PluralReplyTag(subscribeTag, replyTag string) bool {
	return replyTag == subscribeTag+"s"
}

// SingularReplyTag accepts replies whose tag plus "s" is the subscribe tag. It is the default.
func SingularReplyTag(subscribeTag, replyTag string) bool {
	return replyTagMatches(subscribeTag, replyTag)
}

// envelope holds the fields the pipeline reads before transforming.
type envelope struct {
	T string `json:"T"`
}

// pipeline turns raw frames into domain values for one subscription.
type pipeline[T any] struct {
	query     *Query
	matches   TagMatcher
	transform func([]byte) (T, error)
	logger    *slog.Logger
}

// handle returns the value to emit for frame, or false when the frame is dropped.
func (p *pipeline[T]) handle(frame []byte) (T, bool) {
	var zero T

	frame = bytes.TrimSpace(frame)
	if len(frame) == 0 {
		return zero, false
	}
	if !json.Valid(frame) {
		p.logger.Debug("dropping unparsable frame", "size", len(frame))
		return zero, false
	}

	if p.query != nil && frame[0] == '{' {
		var env envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			p.logger.Debug("dropping frame with bad envelope", "error", err)
			return zero, false
		}
		// Untagged frames pass through.
		if env.T != "" && !p.matches(p.query.T, env.T) {
			return zero, false
		}
	}

	v, err := p.transform(frame)
	if err != nil {
		p.logger.Debug("dropping frame", "error", err)
		return zero, false
	}

	return v, true
}
