package domain

// StatsRepository defines the interface for retrieving recorder statistics.
type StatsRepository interface {
	// GetStats counts exchanges by outcome along with the persisted logs.
	GetStats() (*Stats, error)
}

// Stats is a snapshot of the recorder contents.
type Stats struct {
	Exchanges  int `json:"exchanges"`  // Total number of recorded exchanges
	Failed     int `json:"failed"`     // Exchanges answered with a relay error envelope
	Redirected int `json:"redirected"` // Exchanges where the upstream answered with a 3xx
	Pending    int `json:"pending"`    // Exchanges with no response recorded yet
	Logs       int `json:"logs"`
}
