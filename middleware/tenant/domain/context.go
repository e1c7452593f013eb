package domain

// RequestContext identifica a requisição e o tenant dela.
// Criado uma vez por requisição e nunca compartilhado entre requisições.
type RequestContext struct {
	RequestID string
	StoreID   string
}
