package models

// ServerSettings is the versioned configuration document issued by the
// collector.
type ServerSettings struct {
	Settings map[string]string `json:"settings"`
	Version  int               `json:"version"`
}
