package dto

type LightDTO struct {
	Name          string `json:"name"`
	Brightness    int    `json:"brightness"`
	ManualControl bool   `json:"manual_control"`
}

type SaveLightsRequest struct {
	Room   string     `json:"room"`
	Lights []LightDTO `json:"lights"`
}

type LightsResponse struct {
	Room      string     `json:"room"`
	Displayed int        `json:"displayed"`
	Lights    []LightDTO `json:"lights"`
}

type ManualControlRequest struct {
	Room       string `json:"room"`
	Light      string `json:"light"`
	Manual     bool   `json:"manual"`
	Brightness int    `json:"brightness"`
}
