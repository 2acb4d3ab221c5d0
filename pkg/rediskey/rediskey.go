package rediskey

import "fmt"

// Key prefixes shared by the api and worker processes.
const (
	OAuthStatePrefix     = "oauth:state"
	OAuthPendingPrefix   = "oauth:pending"
	PostLockPrefix       = "lock:post"
	CredentialLockPrefix = "lock:credential"
	SchedulerLockKey     = "lock:scheduler:sweep"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildOAuthStateKey returns "oauth:state:{state}"
func BuildOAuthStateKey(state string) string {
	return NamespaceKey(OAuthStatePrefix, state)
}

// BuildOAuthPendingKey returns "oauth:pending:{sessionKey}"
func BuildOAuthPendingKey(sessionKey string) string {
	return NamespaceKey(OAuthPendingPrefix, sessionKey)
}

// BuildPostLockKey returns "lock:post:{postID}"
func BuildPostLockKey(postID string) string {
	return NamespaceKey(PostLockPrefix, postID)
}

// BuildCredentialLockKey returns "lock:credential:{credentialID}"
func BuildCredentialLockKey(credentialID string) string {
	return NamespaceKey(CredentialLockPrefix, credentialID)
}
