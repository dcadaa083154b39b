package constants

import "time"

const (
	ClientName    = "courier-go"
	ClientVersion = "0.4.0"
)

const (
	DefaultServerURL   = "https://collector.courier.dev"
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	HeaderAuthorization   = "Authorization"
	HeaderUserAgent       = "User-Agent"
	HeaderConfigVersion   = "X-Courier-ConfigVersion"
	HeaderRateLimitRemain = "X-RateLimit-Remaining"
	HeaderContentEncoding = "Content-Encoding"
)

const (
	PathEvents          = "/api/v2/events"
	PathUserDescription = "/api/v2/events/by-ref/%s/user-description"
	PathProjectConfig   = "/api/v2/projects/config"
	PathHeartbeat       = "/api/v2/events/session/heartbeat"
)

const (
	DefaultSubmissionBatchSize = 50
	DefaultMaxQueueItems       = 250
	DefaultProcessInterval     = 10 * time.Second
	BatchShrinkFactor          = 1.5
	SuspendRoundingMinutes     = 15
	SuspendUnauthorized        = 15 * time.Minute
	SuspendNotFound            = 4 * time.Hour
)

const (
	QueueKeyPrefix = "q:"
	QueueKeySuffix = ".json"
	SettingsKey    = "settings"
)

const (
	DefaultDuplicateInterval = 30 * time.Second
	DuplicateHistorySize     = 50
)

const (
	DefaultHeartbeatInterval = 60 * time.Second
	MinHeartbeatInterval     = 30 * time.Second
)

const (
	DefaultSettingsPollInterval = 2 * time.Minute
	SettingDataExclusions       = "@@DataExclusions"
	SettingPrefix               = "@@"
	SettingExcludeExpression    = "@@exclude:"
)

const (
	MinAPIKeyLength = 10
	ReferenceIDLen  = 10
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	StorageTypeMemory = "memory"
	StorageTypeFile   = "file"
	StorageTypeRedis  = "redis"
)

const (
	SubmissionTypeHTTP  = "http"
	SubmissionTypeKafka = "kafka"
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)
