package post

import (
	"fmt"

	"postflow/pkg/errutil"
)

// postTransitions is the legal Post lifecycle. A status missing from the map
// or mapped to an empty list is terminal.
var postTransitions = map[PostStatus][]PostStatus{
	StatusDraft:      {StatusSubmitted, StatusCancelled},
	StatusSubmitted:  {StatusApproved, StatusRejected},
	StatusApproved:   {StatusScheduled, StatusPublishing},
	StatusRejected:   {StatusDraft},
	StatusScheduled:  {StatusPublishing, StatusCancelled},
	StatusPublishing: {StatusPublished, StatusFailed},
	StatusFailed:     {StatusPublishing},
	StatusPublished:  {},
	StatusCancelled:  {},
}

var targetTransitions = map[TargetStatus][]TargetStatus{
	TargetPending:    {TargetPublishing},
	TargetPublishing: {TargetPublished, TargetFailed},
	TargetFailed:     {TargetPublishing},
	TargetPublished:  {},
}

// PostStatuses lists every Post status.
func PostStatuses() []PostStatus {
	return []PostStatus{
		StatusDraft, StatusSubmitted, StatusApproved, StatusRejected, StatusScheduled,
		StatusPublishing, StatusPublished, StatusFailed, StatusCancelled,
	}
}

// TargetStatuses lists every PostTarget status.
func TargetStatuses() []TargetStatus {
	return []TargetStatus{TargetPending, TargetPublishing, TargetPublished, TargetFailed}
}

// AllowedTransitions returns the destinations reachable from s.
func AllowedTransitions(s PostStatus) []PostStatus {
	return append([]PostStatus(nil), postTransitions[s]...)
}

// AllowedTargetTransitions returns the destinations reachable from s.
func AllowedTargetTransitions(s TargetStatus) []TargetStatus {
	return append([]TargetStatus(nil), targetTransitions[s]...)
}

func invalidTransition(kind, from, to string) error {
	return errutil.New(errutil.StatusInvalidTransition,
		fmt.Sprintf("%s cannot move from %s to %s", kind, from, to),
		errutil.WithDetails(errutil.Detail{Field: "status", Message: to}),
	)
}

// ValidateTransition reports whether a Post may move from current to
// requested. Identity moves are always rejected.
func ValidateTransition(current, requested PostStatus) error {
	if current != requested {
		for _, s := range postTransitions[current] {
			if s == requested {
				return nil
			}
		}
	}
	return invalidTransition("post", string(current), string(requested))
}

// ValidateTargetTransition is ValidateTransition for PostTarget.
func ValidateTargetTransition(current, requested TargetStatus) error {
	if current != requested {
		for _, s := range targetTransitions[current] {
			if s == requested {
				return nil
			}
		}
	}
	return invalidTransition("target", string(current), string(requested))
}

// ValidateTargetAttempt checks that t may be moved to PUBLISHING given the
// retry ceiling. A FAILED target that spent its attempts is permanent.
func ValidateTargetAttempt(t *PostTarget, ceiling int) error {
	if err := ValidateTargetTransition(t.Status, TargetPublishing); err != nil {
		return err
	}
	if t.Status == TargetFailed && !Retryable(t, ceiling) {
		return errutil.New(errutil.StatusPermanentFailure,
			fmt.Sprintf("target %s exhausted %d attempts", t.ID, t.RetryCount))
	}
	return nil
}

// Retryable reports whether a FAILED target can be attempted again.
func Retryable(t *PostTarget, ceiling int) bool {
	if t.Status != TargetFailed {
		return false
	}
	if t.ErrorCode != nil && *t.ErrorCode == string(errutil.StatusPermanentFailure) {
		return false
	}
	return t.RetryCount < ceiling
}

// AwaitingRetry reports whether t will be retried without anyone asking:
// a retryable failure that is not waiting for the user to reconnect its
// credential.
func AwaitingRetry(t *PostTarget, ceiling int) bool {
	if !Retryable(t, ceiling) {
		return false
	}
	return t.ErrorCode == nil || *t.ErrorCode != string(errutil.StatusCredentialExpired)
}

// Eligible reports whether an orchestrator pass should attempt t.
func Eligible(t *PostTarget, ceiling int) bool {
	return t.Status == TargetPending || Retryable(t, ceiling)
}

// ResolvePostOutcome applies the partial success rule to the targets of a
// publishing Post:
//
//   - any target PENDING or PUBLISHING: not settled.
//   - every target FAILED: FAILED. Retryable targets are picked up again
//     through FAILED -> PUBLISHING.
//   - at least one PUBLISHED: PUBLISHED, unless a FAILED sibling is still
//     awaiting an automatic retry, in which case the Post stays PUBLISHING
//     until it either succeeds or spends its attempts.
func ResolvePostOutcome(targets []PostTarget, ceiling int) (status PostStatus, settled bool) {
	if len(targets) == 0 {
		return StatusPublishing, false
	}

	var published, failed, retryable int
	for i := range targets {
		switch targets[i].Status {
		case TargetPublished:
			published++
		case TargetFailed:
			failed++
			if AwaitingRetry(&targets[i], ceiling) {
				retryable++
			}
		default:
			return StatusPublishing, false
		}
	}

	switch {
	case failed == len(targets):
		return StatusFailed, true
	case published > 0 && retryable == 0:
		return StatusPublished, true
	default:
		return StatusPublishing, false
	}
}
