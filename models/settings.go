package models

type EmbedSnippet struct {
	BrandID     string `json:"brand_id"`
	EmbedSecret string `json:"embed_secret"`
	ScriptTag   string `json:"script_tag"`
	IframeTag   string `json:"iframe_tag"`
}

type TokenUsage struct {
	Used      int     `json:"used"`
	Limit     int     `json:"limit"`
	Remaining int     `json:"remaining"`
	Usage     float64 `json:"usage_percentage"`
}

type SystemHealth struct {
	Status       string                 `json:"status"`
	Timestamp    string                 `json:"timestamp"`
	Database     string                 `json:"database"`
	RemoteModel  string                 `json:"remote_model"`
	LocalSidecar string                 `json:"local_sidecar"`
	ActiveDecks  int                    `json:"active_decks"`
	Metrics      map[string]interface{} `json:"metrics"`
}
