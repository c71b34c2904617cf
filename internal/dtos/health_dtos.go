package dtos

type HealthCheckResponse struct {
	Status string `json:"status"`
}

// PingResponse reports which settings are present, never their values.
type PingResponse struct {
	OK  bool               `json:"ok"`
	Env map[string]*string `json:"env"`
}
