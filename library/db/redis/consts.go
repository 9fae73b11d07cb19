package redis

const (
	keyPrefix     = "disaster-alert/"
	keyPrefixTask = keyPrefix + "tasks/"

	// KeyTaskNotify is the list holding pending notification jobs.
	KeyTaskNotify = keyPrefixTask + "notify"
)
