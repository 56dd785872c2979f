package models

// Request bodies and query strings of the REST façade. Structural checks are
// validator tags; range and domain checks stay in the services.

type GenerateSignalRequest struct {
	Asset             string         `json:"asset" validate:"required"`
	Type              SignalType     `json:"type" validate:"required"`
	Strength          int            `json:"strength"`
	Confidence        float64        `json:"confidence"`
	TriggerConditions map[string]any `json:"trigger_conditions"`
	AIAnalysis        map[string]any `json:"ai_analysis"`
	MarketData        map[string]any `json:"market_data"`
}

type UpdateSignalRequest struct {
	Signal *Signal     `json:"signal" validate:"required"`
	Patch  SignalPatch `json:"patch"`
}

type AIAnalysisRequest struct {
	AIAnalysis map[string]any `json:"ai_analysis" validate:"required"`
	MarketData map[string]any `json:"market_data"`
	UserIDs    []string       `json:"user_ids"`
}

type SnapshotRequest struct {
	Snapshot map[string]any `json:"snapshot" validate:"required"`
	UserIDs  []string       `json:"user_ids"`
}

type EvaluateSignalRequest struct {
	Signal         *Signal        `json:"signal" validate:"required"`
	HistoricalData map[string]any `json:"historical_data"`
}

type SignalsRequest struct {
	Signals        []*Signal      `json:"signals" validate:"required,min=1"`
	HistoricalData map[string]any `json:"historical_data"`
}

type ClassifySignalRequest struct {
	Signal *Signal `json:"signal" validate:"required"`
}

type EvaluateRulesRequest struct {
	Snapshot map[string]any `json:"snapshot" validate:"required"`
}

type RulesQuery struct {
	Type string `query:"type" validate:"omitempty,oneof=threshold trend composite anomaly pattern"`
}

type ThresholdsRequest struct {
	UserID     string     `param:"user_id" json:"-" validate:"required"`
	Thresholds Thresholds `json:"thresholds" validate:"required"`
}

type ChannelsRequest struct {
	UserID   string   `param:"user_id" json:"-" validate:"required"`
	Channels []string `json:"channels" validate:"required,min=1"`
	Contacts Contacts `json:"contacts"`
}

type CheckNotificationsRequest struct {
	Signal  *Signal  `json:"signal" validate:"required"`
	UserIDs []string `json:"user_ids"`
}

type NotificationsQuery struct {
	UserID string `query:"user_id"`
	Limit  int    `query:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type HistoryQuery struct {
	Asset  string `query:"asset"`
	Type   string `query:"type"`
	Status string `query:"status" validate:"omitempty,oneof=active completed expired canceled"`
	Level  string `query:"level"`
	From   string `query:"from"`
	To     string `query:"to"`
	Limit  int    `query:"limit" default:"100" validate:"gte=1,lte=10000"`
}

type TimeRangeQuery struct {
	From string `query:"from"`
	To   string `query:"to"`
}

type AccuracyQuery struct {
	Asset string `query:"asset"`
	Type  string `query:"type"`
}

type ClearHistoryQuery struct {
	OlderThanDays int `query:"older_than_days" validate:"gte=0"`
}

type ExportQuery struct {
	Format string `query:"format" default:"json" validate:"oneof=json csv"`
}
