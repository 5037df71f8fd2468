package git

import (
	"strings"

	apperrors "datasync/pkg/errors"
)

var (
	authPatterns = []string{
		"authentication failed",
		"could not read username",
		"permission denied",
		"repository not found",
	}
	nonFastForwardPatterns = []string{
		"non-fast-forward",
		"fetch first",
		"[rejected]",
		"updates were rejected",
	}
	missingRefPatterns = []string{
		"couldn't find remote ref",
	}
)

func containsAny(s string, patterns []string) bool {
	s = strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// IsAuthFailure reports whether a remote rejected the credential.
func IsAuthFailure(stderr string) bool {
	return containsAny(stderr, authPatterns)
}

// IsNonFastForward reports whether a push was rejected as behind.
func IsNonFastForward(stderr string) bool {
	return containsAny(stderr, nonFastForwardPatterns)
}

// IsMissingRemoteRef reports whether a fetch named a branch the remote
// does not have yet.
func IsMissingRemoteRef(stderr string) bool {
	return containsAny(stderr, missingRefPatterns)
}

// ClassifyFetch tags a failed fetch.
func ClassifyFetch(r *CommandResult) apperrors.Kind {
	if r != nil && IsAuthFailure(r.Stderr) {
		return apperrors.KindAuthFailure
	}
	return apperrors.KindGeneral
}

// ClassifyPush tags a failed non-forced push.
func ClassifyPush(r *CommandResult) apperrors.Kind {
	if r == nil {
		return apperrors.KindGeneral
	}
	switch {
	case IsNonFastForward(r.Stderr):
		return apperrors.KindNonFastForward
	case IsAuthFailure(r.Stderr):
		return apperrors.KindAuthFailure
	}
	return apperrors.KindGeneral
}

// ClassifyForcePush tags a failed forced push; it is never non-fast-forward.
func ClassifyForcePush(r *CommandResult) apperrors.Kind {
	return ClassifyFetch(r)
}
