package entities

type Player struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}
