package models

// AccountConfig identifies one scraped account. Index is 1-based and fixed for the process lifetime.
type AccountConfig struct {
	Index       int    `json:"index"`
	DisplayName string `json:"displayName"`
}
