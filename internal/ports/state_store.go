package ports

// StateStore persiste snapshots de calibración (edge tracker, stats de
// Kelly) como JSON durable. Una instancia por archivo de estado.
type StateStore interface {
	// Save serializa v y lo escribe de forma atómica.
	Save(v any) error

	// Load deserializa el último estado guardado en v. Devuelve false
	// si no existe estado previo; un archivo corrupto sin backup legible
	// es un error.
	Load(v any) (bool, error)
}
