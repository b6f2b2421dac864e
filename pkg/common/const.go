package common

const (
	KEY_LOG_HOOK_SEND_ALERT = "send_alert"
)

const (
	KEY_CACHE_SCHEMA       = "schema:%s"
	KEY_CACHE_DATASET      = "dataset:%s"
	HEADER_VALIDATION_DONE = "X-Validation-Performed"
)
