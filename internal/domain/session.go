package domain

// Binding asocia una conexión a un par (sala, usuario) después de un join.
type Binding struct {
	Room string `json:"room"`
	User string `json:"user"`
}
